// Package sensor provides the concrete sensors registered with the orchestrator.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/core"
	"github.com/sweeney/reptile-core/internal/mqtt"
)

// Read errors.
var (
	ErrNoReading = errors.New("sensor: no reading yet")
	ErrStale     = errors.New("sensor: reading is stale")
)

// reading is the message body published by zigbee2mqtt temperature/humidity
// devices. Other fields (battery, linkquality) are ignored.
type reading struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// MQTTSensor holds the latest reading received on one topic.
type MQTTSensor struct {
	name   string
	topic  string
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	last core.Measurement
	at   time.Time
}

// NewMQTTSensor subscribes to topic and returns the sensor. maxAge of zero
// means a reading never goes stale.
func NewMQTTSensor(sub mqtt.Subscriber, name, topic string, maxAge time.Duration, logger *slog.Logger) (*MQTTSensor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSensor{
		name:   name,
		topic:  topic,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With("sensor", name),
	}
	if err := sub.Subscribe(topic, s.handle); err != nil {
		return nil, fmt.Errorf("sensor %s: %w", name, err)
	}
	return s, nil
}

// Name returns the configured sensor name.
func (s *MQTTSensor) Name() string { return s.name }

func (s *MQTTSensor) handle(payload []byte) {
	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		s.logger.Warn("bad sensor payload", "topic", s.topic, "error", err)
		return
	}
	if r.Temperature == nil || r.Humidity == nil {
		s.logger.Warn("sensor payload missing fields", "topic", s.topic)
		return
	}

	m := core.Measurement{
		Temperature: int(math.Round(*r.Temperature)),
		Humidity:    int(math.Round(*r.Humidity)),
	}
	s.mu.Lock()
	s.last = m
	s.at = s.now()
	s.mu.Unlock()
	s.logger.Debug("reading", "temperature", m.Temperature, "humidity", m.Humidity)
}

// Read returns the latest reading.
func (s *MQTTSensor) Read() (core.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.at.IsZero() {
		return core.Measurement{}, fmt.Errorf("%s: %w", s.name, ErrNoReading)
	}
	if age := s.now().Sub(s.at); s.maxAge > 0 && age > s.maxAge {
		return core.Measurement{}, fmt.Errorf("%s: %w (age %s)", s.name, ErrStale, age.Truncate(time.Second))
	}
	return s.last, nil
}

// Fixed always returns the same measurement.
type Fixed struct {
	M core.Measurement
}

// Read returns f.M.
func (f Fixed) Read() (core.Measurement, error) {
	return f.M, nil
}
