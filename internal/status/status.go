// Package status provides a thread-safe status tracker for the reptile-core daemon.
// It is registered as a regulator so it sees every tick and profile change,
// and is read by the HTTP handlers and for MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// NetworkInfo contains network state, read from the environment at startup.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Interval   time.Duration
	ConfigPath string
	Broker     string
	HTTPAddr   string
	Sensors    []string
	InstanceID string
}

// Relay is a regulator output whose state is shown on the status page.
type Relay interface {
	Name() string
	On() bool
}

// RelayState is a relay's name and last written state.
type RelayState struct {
	Name string
	On   bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Conditions    conditions.Snapshot
	Profile       profile.Profile
	Ticks         int
	MissedTicks   int // consecutive ticks that produced no new conditions
	Relays        []RelayState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one set of conditions has been measured.
func (s Snapshot) Ready() bool {
	return !s.Conditions.Timestamp.IsZero()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	relays []Relay
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// ProfileChanged records the active profile.
func (t *Tracker) ProfileChanged(p profile.Profile) {
	t.mu.Lock()
	t.snap.Profile = p
	t.mu.Unlock()
}

// Tick records the snapshot. A snapshot with an unchanged timestamp counts
// as a missed tick.
func (t *Tracker) Tick(snap conditions.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Ticks++
	if snap.Timestamp.IsZero() || snap.Timestamp.Equal(t.snap.Conditions.Timestamp) {
		t.snap.MissedTicks++
		return
	}
	t.snap.Conditions = snap
	t.snap.MissedTicks = 0
}

// AddRelay includes r in snapshots.
func (t *Tracker) AddRelay(r Relay) {
	t.mu.Lock()
	t.relays = append(t.relays, r)
	t.mu.Unlock()
}

// SetInterval updates the displayed sample interval after a config reload.
func (t *Tracker) SetInterval(d time.Duration) {
	t.mu.Lock()
	t.snap.Config.Interval = d
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	relays := t.relays
	t.mu.RUnlock()

	s.Config.Sensors = append([]string(nil), s.Config.Sensors...)
	s.Relays = make([]RelayState, 0, len(relays))
	for _, r := range relays {
		s.Relays = append(s.Relays, RelayState{Name: r.Name(), On: r.On()})
	}
	s.Now = t.now()
	return s
}
