// Package conditions holds the latest aggregated enclosure readings.
// A Store has one writer (the orchestrator tick) and any number of readers.
package conditions

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the enclosure.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	LightOn     bool
	Temperature int
	Humidity    int
	Timestamp   time.Time
}

// Store guards the current Snapshot behind an RWMutex.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	missed int
}

// NewStore creates a Store holding the zero Snapshot.
func NewStore() *Store {
	return &Store{}
}

// Publish replaces every field of the snapshot in one critical section
// and clears the missed-tick count.
func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.missed = 0
	s.mu.Unlock()
}

// MarkMissed records a tick that produced no readings.
// The snapshot itself is left untouched.
func (s *Store) MarkMissed() {
	s.mu.Lock()
	s.missed++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// MissedTicks returns the number of consecutive ticks since the last publish
// that had no successful sensor reads.
func (s *Store) MissedTicks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missed
}
