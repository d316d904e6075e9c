package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/config"
	"github.com/sweeney/reptile-core/internal/profile"
)

var errSensor = errors.New("sensor offline")

// fakeSensor returns a fixed measurement, a fixed error, or panics.
type fakeSensor struct {
	m     Measurement
	err   error
	panic bool
}

func (f *fakeSensor) Read() (Measurement, error) {
	if f.panic {
		panic("sensor exploded")
	}
	return f.m, f.err
}

// event is one regulator callback, recorded in a shared journal.
type event struct {
	regulator string
	op        string // "profile" or "tick"
	profile   profile.Profile
	snap      conditions.Snapshot
}

type journal struct {
	mu     sync.Mutex
	events []event
}

func (j *journal) add(e event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

func (j *journal) all() []event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]event(nil), j.events...)
}

func (j *journal) filter(op string) []event {
	var out []event
	for _, e := range j.all() {
		if e.op == op {
			out = append(out, e)
		}
	}
	return out
}

// recordingRegulator writes every callback to a journal and optionally panics.
type recordingRegulator struct {
	name      string
	j         *journal
	panicOnOp string
	ticked    chan conditions.Snapshot
}

func (r *recordingRegulator) ProfileChanged(p profile.Profile) {
	r.j.add(event{regulator: r.name, op: "profile", profile: p})
	if r.panicOnOp == "profile" {
		panic(r.name + " profile failure")
	}
}

func (r *recordingRegulator) Tick(snap conditions.Snapshot) {
	r.j.add(event{regulator: r.name, op: "tick", snap: snap})
	if r.ticked != nil {
		r.ticked <- snap
	}
	if r.panicOnOp == "tick" {
		panic(r.name + " tick failure")
	}
}

// manualTicker is driven by the test instead of the wall clock.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	resets  []time.Duration
	stopped bool
	initial time.Duration
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Reset(d time.Duration) {
	m.mu.Lock()
	m.resets = append(m.resets, d)
	m.mu.Unlock()
}

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) state() (initial time.Duration, resets []time.Duration, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initial, append([]time.Duration(nil), m.resets...), m.stopped
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock returns a clock pinned to 10:00 UTC.
func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func testConfig() config.Configuration {
	return config.Configuration{TimeDelay: 60, DefaultProfile: "default.toml"}
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{WithLogger(discardLogger()), WithClock(fixedClock())}
	return New(testConfig(), profile.Default(), conditions.NewStore(), append(base, opts...)...)
}

func profileDoc(name string, tmin, tmax, hmin, hmax int) string {
	return fmt.Sprintf(`name = %q
[temps]
max = %d
min = %d
[humidity]
max = %d
min = %d
[light]
on = 08:00:00
off = 20:00:00
`, name, tmax, tmin, hmax, hmin)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// running starts Run on a Client with a manual ticker and stops it at cleanup.
type running struct {
	orch   *Orchestrator
	client *Client
	ticker *manualTicker
	errCh  chan error
	once   sync.Once
}

func startRun(t *testing.T, orch *Orchestrator) *running {
	t.Helper()
	r := &running{
		orch:   orch,
		client: NewClient(2 * time.Second),
		ticker: &manualTicker{ch: make(chan time.Time)},
		errCh:  make(chan error, 1),
	}
	WithTickerFactory(func(d time.Duration) Ticker {
		r.ticker.mu.Lock()
		r.ticker.initial = d
		r.ticker.mu.Unlock()
		return r.ticker
	})(orch)

	go func() {
		r.errCh <- orch.Run(r.client.Commands(), r.client.Responses())
	}()
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.once.Do(func() {
		r.client.Close()
		select {
		case err := <-r.errCh:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after the command channel closed")
		}
	})
}

// tick fires the ticker and waits for the given regulator to be ticked.
func (r *running) tick(t *testing.T, reg *recordingRegulator) conditions.Snapshot {
	t.Helper()
	r.ticker.ch <- time.Now()
	select {
	case snap := <-reg.ticked:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not reach the regulator")
		return conditions.Snapshot{}
	}
}
