// Package influx writes enclosure conditions to InfluxDB as time-series points.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// Measurement is the InfluxDB measurement name for snapshots.
const Measurement = "conditions"

const (
	connectTimeout        = 10 * time.Second
	millisecondsPerSecond = 1000
)

// ErrConnectionFailed is returned when the server cannot be reached at startup.
var ErrConnectionFailed = errors.New("influxdb connection failed")

// Config contains InfluxDB connection settings.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval int // seconds
	Enclosure     string
}

// pointWriter is the subset of api.WriteAPI the Writer uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Writer is a regulator that writes one point per fresh snapshot. Writes are
// batched and non-blocking; errors arrive asynchronously and are logged.
type Writer struct {
	client    influxdb2.Client
	api       pointWriter
	enclosure string
	logger    *slog.Logger

	mu      sync.Mutex
	profile string
	last    time.Time
}

// Connect pings the server and returns a Writer for cfg.Org and cfg.Bucket.
func Connect(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := newWriter(writeAPI, cfg.Enclosure, logger)
	w.client = client

	go func() {
		for err := range writeAPI.Errors() {
			w.logger.Warn("write failed", "error", err)
		}
	}()
	return w, nil
}

func newWriter(pw pointWriter, enclosure string, logger *slog.Logger) *Writer {
	if enclosure == "" {
		enclosure = "default"
	}
	return &Writer{
		api:       pw,
		enclosure: enclosure,
		logger:    logger.With("regulator", "influx"),
	}
}

// Point builds the InfluxDB point for a snapshot.
func Point(snap conditions.Snapshot, enclosure, profileName string) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"enclosure": enclosure,
			"profile":   profileName,
		},
		map[string]interface{}{
			"temperature": snap.Temperature,
			"humidity":    snap.Humidity,
			"light_on":    snap.LightOn,
		},
		snap.Timestamp,
	)
}

// ProfileChanged tags later points with the new profile name.
func (w *Writer) ProfileChanged(p profile.Profile) {
	w.mu.Lock()
	w.profile = p.Name
	w.mu.Unlock()
}

// Tick queues a point for snap unless it is empty or already written.
func (w *Writer) Tick(snap conditions.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if snap.Timestamp.IsZero() || snap.Timestamp.Equal(w.last) {
		return
	}
	w.api.WritePoint(Point(snap, w.enclosure, w.profile))
	w.last = snap.Timestamp
}

// Close flushes pending points and closes the client.
func (w *Writer) Close() error {
	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
