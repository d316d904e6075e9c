package gpio

import "sync"

// FakeRelay records relay writes for test assertions.
type FakeRelay struct {
	mu sync.Mutex

	// Writes contains every value passed to Set, in order, including failed ones.
	Writes []bool

	// On is the last successfully written state.
	On bool

	// SetError, if set, is returned by Set and the state is left unchanged.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRelay creates a FakeRelay that starts off.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the write.
func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, on)
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	return nil
}

// Close switches the fake off and marks it closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.On = false
	f.Closed = true
	return nil
}

// State returns the current state and number of writes.
func (f *FakeRelay) State() (on bool, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On, len(f.Writes)
}

// Fail makes subsequent writes return err; nil clears it.
func (f *FakeRelay) Fail(err error) {
	f.mu.Lock()
	f.SetError = err
	f.mu.Unlock()
}

// Reset clears recorded writes and errors.
func (f *FakeRelay) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
	f.On = false
	f.SetError = nil
	f.Closed = false
}
