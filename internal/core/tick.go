package core

import (
	"fmt"

	"github.com/sweeney/reptile-core/internal/conditions"
)

// Aggregate returns the integer mean (truncated) of the measurements.
// ok is false when ms is empty.
func Aggregate(ms []Measurement) (m Measurement, ok bool) {
	if len(ms) == 0 {
		return Measurement{}, false
	}
	var temp, humid int
	for _, x := range ms {
		temp += x.Temperature
		humid += x.Humidity
	}
	n := len(ms)
	return Measurement{Temperature: temp / n, Humidity: humid / n}, true
}

// Tick runs one sample-aggregate-publish-regulate cycle.
//
// Sensors that fail are left out of the average. When none succeed the
// previous snapshot is kept and the store's missed-tick count goes up.
// Regulators are ticked either way, in registration order. The sensor lock is
// held for the whole cycle, so a reload lands entirely before or after it.
func (o *Orchestrator) Tick() {
	now := o.now()

	o.sensorsMu.Lock()
	defer o.sensorsMu.Unlock()
	readings := make([]Measurement, 0, len(o.sensors))
	for i, s := range o.sensors {
		m, err := readSensor(s)
		if err != nil {
			o.logger.Warn("sensor read failed", "sensor", i, "error", err)
			continue
		}
		readings = append(readings, m)
	}
	total := len(o.sensors)

	if avg, ok := Aggregate(readings); ok {
		o.store.Publish(conditions.Snapshot{
			LightOn:     o.Profile().Light.IsOn(now),
			Temperature: avg.Temperature,
			Humidity:    avg.Humidity,
			Timestamp:   now,
		})
		o.logger.Debug("conditions published",
			"temperature", avg.Temperature, "humidity", avg.Humidity,
			"sensors_ok", len(readings), "sensors", total)
	} else {
		o.store.MarkMissed()
		o.logger.Warn("no sensor readings, holding previous conditions",
			"sensors", total, "missed_ticks", o.store.MissedTicks())
	}

	snap := o.store.Snapshot()

	o.regulatorsMu.Lock()
	defer o.regulatorsMu.Unlock()
	for i, r := range o.regulators {
		o.guard(i, "tick", func() { r.Tick(snap) })
	}
}

func readSensor(s Sensor) (m Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSensorPanic, r)
		}
	}()
	return s.Read()
}
