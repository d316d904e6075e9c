// Package regulator holds the relay-driving regulators: heater and mister
// bands with hysteresis, and the light schedule.
//
// Every regulator here treats a stale or empty snapshot as unknown conditions
// and fails safe: bands switch off, the light falls back to its own schedule.
package regulator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/gpio"
	"github.com/sweeney/reptile-core/internal/profile"
)

// DefaultMaxAge is how old a snapshot may be before it is ignored.
const DefaultMaxAge = 5 * time.Minute

// Option configures a regulator.
type Option func(*base)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithClock sets the time source used for staleness and the light schedule.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithMaxAge sets how old a snapshot may be. Zero disables the age check;
// a zero snapshot is always treated as stale.
func WithMaxAge(d time.Duration) Option {
	return func(b *base) { b.maxAge = d }
}

// base is the relay bookkeeping shared by Band and Light.
type base struct {
	name   string
	relay  gpio.Relay
	logger *slog.Logger
	now    func() time.Time
	maxAge time.Duration

	mu     sync.Mutex
	on     bool
	synced bool // relay known to match on
}

func newBase(name string, relay gpio.Relay, opts []Option) base {
	b := base{
		name:   name,
		relay:  relay,
		logger: slog.Default(),
		now:    time.Now,
		maxAge: DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With("regulator", name)
	return b
}

func (b *base) fresh(snap conditions.Snapshot) bool {
	if snap.Timestamp.IsZero() {
		return false
	}
	return b.maxAge <= 0 || b.now().Sub(snap.Timestamp) <= b.maxAge
}

// drive writes want to the relay if it differs from the last good write.
// Must be called with mu held. A failed write is retried on the next call.
func (b *base) drive(want bool) {
	if b.synced && b.on == want {
		return
	}
	if err := b.relay.Set(want); err != nil {
		b.synced = false
		b.logger.Warn("relay write failed", "on", want, "error", err)
		return
	}
	b.logger.Info("relay switched", "on", want)
	b.on = want
	b.synced = true
}

// On reports the last state successfully written to the relay.
func (b *base) On() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on && b.synced
}

// Name returns the regulator's name.
func (b *base) Name() string { return b.name }

// Band switches a relay on below a profile minimum and off at the maximum.
type Band struct {
	base
	value func(conditions.Snapshot) int
	band  func(profile.Profile) profile.Range
	rng   profile.Range
}

// NewBand creates a band regulator. value extracts the watched reading from a
// snapshot and band selects the matching range from a profile.
func NewBand(name string, relay gpio.Relay, value func(conditions.Snapshot) int, band func(profile.Profile) profile.Range, opts ...Option) *Band {
	return &Band{
		base:  newBase(name, relay, opts),
		value: value,
		band:  band,
	}
}

// NewHeater watches temperature against the profile's Temps range.
func NewHeater(relay gpio.Relay, opts ...Option) *Band {
	return NewBand("heater", relay,
		func(s conditions.Snapshot) int { return s.Temperature },
		func(p profile.Profile) profile.Range { return p.Temps },
		opts...)
}

// NewMister watches humidity against the profile's Humidity range.
func NewMister(relay gpio.Relay, opts ...Option) *Band {
	return NewBand("mister", relay,
		func(s conditions.Snapshot) int { return s.Humidity },
		func(p profile.Profile) profile.Range { return p.Humidity },
		opts...)
}

// ProfileChanged adopts the new range. The relay is re-evaluated on the next tick.
func (b *Band) ProfileChanged(p profile.Profile) {
	b.mu.Lock()
	b.rng = b.band(p)
	b.mu.Unlock()
}

// Tick applies the band to the snapshot.
func (b *Band) Tick(snap conditions.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fresh(snap) {
		if b.on || !b.synced {
			b.logger.Warn("conditions stale, switching off", "timestamp", snap.Timestamp)
		}
		b.drive(false)
		return
	}

	v := b.value(snap)
	want := b.on
	switch {
	case v < b.rng.Min:
		want = true
	case v >= b.rng.Max:
		want = false
	}
	b.drive(want)
}

// Light follows the snapshot's LightOn flag, or the profile schedule when the
// snapshot is stale.
type Light struct {
	base
	schedule profile.Schedule
}

// NewLight creates a light regulator.
func NewLight(relay gpio.Relay, opts ...Option) *Light {
	return &Light{base: newBase("light", relay, opts)}
}

// ProfileChanged adopts the new schedule and applies it immediately.
func (l *Light) ProfileChanged(p profile.Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.schedule = p.Light
	l.drive(l.schedule.IsOn(l.now()))
}

// Tick sets the light.
func (l *Light) Tick(snap conditions.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fresh(snap) {
		l.drive(snap.LightOn)
		return
	}
	l.drive(l.schedule.IsOn(l.now()))
}
