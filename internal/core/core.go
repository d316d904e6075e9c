// Package core runs the enclosure control loop.
//
// An Orchestrator owns the registered sensors and regulators, the active
// Configuration and Profile, and a conditions.Store. It samples every sensor
// on a fixed interval, publishes the averaged conditions and hands them to each
// regulator. Between ticks it serves commands that query conditions or replace
// the profile/configuration.
//
// Lock order is fixed: sensor set, then conditions store, then regulator set.
// The state lock guarding configuration and profile is a leaf: nothing else is
// acquired while it is held.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/config"
	"github.com/sweeney/reptile-core/internal/profile"
)

// DefaultReplyTimeout bounds how long Run waits for a reader to take a response.
const DefaultReplyTimeout = time.Second

// ErrSensorPanic wraps a panic recovered from a sensor's Read.
var ErrSensorPanic = errors.New("sensor panicked")

// Measurement is one sensor's reading for one tick.
type Measurement struct {
	Temperature int
	Humidity    int
}

// Sensor produces a Measurement on demand.
// Read should return promptly; timeouts are the driver's concern.
type Sensor interface {
	Read() (Measurement, error)
}

// Regulator reacts to conditions and profile changes.
// Both methods are called with the regulator set locked and must not block
// for long or call back into the Orchestrator's command path.
type Regulator interface {
	ProfileChanged(p profile.Profile)
	Tick(snap conditions.Snapshot)
}

// Ticker is the subset of *time.Ticker the tick loop needs.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

// Orchestrator is the control loop. Create it with New.
type Orchestrator struct {
	sensorsMu sync.Mutex
	sensors   []Sensor

	regulatorsMu sync.Mutex
	regulators   []Regulator

	store *conditions.Store

	stateMu sync.RWMutex
	cfg     config.Configuration
	prof    profile.Profile

	logger       *slog.Logger
	now          func() time.Time
	newTicker    func(time.Duration) Ticker
	replyTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now, used to timestamp snapshots and evaluate the light schedule.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTickerFactory replaces time.NewTicker in Run.
func WithTickerFactory(f func(time.Duration) Ticker) Option {
	return func(o *Orchestrator) { o.newTicker = f }
}

// WithReplyTimeout bounds how long a response send may block.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.replyTimeout = d }
}

// New creates an Orchestrator with the given starting configuration and
// profile, publishing into store.
func New(cfg config.Configuration, p profile.Profile, store *conditions.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		cfg:          cfg,
		prof:         p,
		logger:       slog.Default(),
		now:          time.Now,
		newTicker:    newStdTicker,
		replyTimeout: DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterSensor appends s to the sensor set.
func (o *Orchestrator) RegisterSensor(s Sensor) {
	o.sensorsMu.Lock()
	o.sensors = append(o.sensors, s)
	o.sensorsMu.Unlock()
}

// RegisterRegulator appends r to the regulator set.
func (o *Orchestrator) RegisterRegulator(r Regulator) {
	o.regulatorsMu.Lock()
	o.regulators = append(o.regulators, r)
	o.regulatorsMu.Unlock()
}

// Store returns the conditions store the Orchestrator publishes into.
func (o *Orchestrator) Store() *conditions.Store {
	return o.store
}

// Profile returns a copy of the active profile.
func (o *Orchestrator) Profile() profile.Profile {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.prof
}

// Configuration returns a copy of the active configuration.
func (o *Orchestrator) Configuration() config.Configuration {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.cfg
}

// Run announces the active profile to every regulator, starts the tick loop
// and serves commands from in until in is closed. Responses go to out.
// It returns once the tick loop has stopped.
func (o *Orchestrator) Run(in <-chan Command, out chan<- Response) error {
	interval := o.Configuration().Interval()
	if interval <= 0 {
		return fmt.Errorf("%w: sample interval %v", config.ErrInvalid, interval)
	}

	o.replace(nil, o.Profile())

	ticker := o.newTicker(interval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.tickLoop(ticker, done)
	}()

	o.logger.Info("control loop started", "interval", interval, "profile", o.Profile().Name)

	for cmd := range in {
		resp, ok := o.handle(cmd, ticker)
		if !ok {
			o.logger.Debug("ignoring command", "kind", cmd.Kind, "id", cmd.ID)
			continue
		}
		o.reply(out, resp)
	}

	close(done)
	wg.Wait()
	ticker.Stop()
	o.logger.Info("command channel closed, control loop stopped")
	return nil
}

func (o *Orchestrator) tickLoop(ticker Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			o.Tick()
		}
	}
}

// replace swaps in a new profile (and configuration, when cfg is non-nil) and
// notifies every regulator before any further tick can reach them.
func (o *Orchestrator) replace(cfg *config.Configuration, p profile.Profile) {
	o.sensorsMu.Lock()
	defer o.sensorsMu.Unlock()
	o.regulatorsMu.Lock()
	defer o.regulatorsMu.Unlock()

	o.stateMu.Lock()
	if cfg != nil {
		o.cfg = *cfg
	}
	o.prof = p
	o.stateMu.Unlock()

	for i, r := range o.regulators {
		o.guard(i, "profile_changed", func() { r.ProfileChanged(p) })
	}
}

// guard runs fn, recovering and logging a regulator panic.
func (o *Orchestrator) guard(index int, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("regulator panicked", "regulator", index, "op", op, "panic", r)
		}
	}()
	fn()
}
