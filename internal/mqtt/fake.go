package mqtt

import (
	"sync"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Snapshots contains every published conditions snapshot.
	Snapshots []conditions.Snapshot

	// Profiles contains every published profile.
	Profiles []profile.Profile

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads maps topic to the JSON payloads published on it, in order.
	Payloads map[string][][]byte

	// PublishError, if set, is returned by PublishConditions and PublishProfile.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

func (f *FakePublisher) record(topic string, payload []byte) {
	if f.Payloads == nil {
		f.Payloads = make(map[string][][]byte)
	}
	f.Payloads[topic] = append(f.Payloads[topic], payload)
}

// PublishConditions records the snapshot.
func (f *FakePublisher) PublishConditions(snap conditions.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatConditions(snap)
	if err != nil {
		return err
	}
	f.Snapshots = append(f.Snapshots, snap)
	f.record(TopicConditions, payload)
	return nil
}

// PublishProfile records the profile.
func (f *FakePublisher) PublishProfile(p profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatProfile(p)
	if err != nil {
		return err
	}
	f.Profiles = append(f.Profiles, p)
	f.record(TopicProfile, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.record(TopicSystem, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Counts returns how many snapshots, profiles and system events were recorded.
func (f *FakePublisher) Counts() (snapshots, profiles, system int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots), len(f.Profiles), len(f.SystemEvents)
}

// Reset clears recorded messages and errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = nil
	f.Profiles = nil
	f.SystemEvents = nil
	f.Payloads = make(map[string][][]byte)
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

// FakeSubscriber hands messages injected with Deliver to subscribed handlers.
type FakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error
}

// NewFakeSubscriber creates a FakeSubscriber for testing.
func NewFakeSubscriber() *FakeSubscriber {
	return &FakeSubscriber{handlers: make(map[string][]func([]byte))}
}

// Subscribe records handler for topic.
func (f *FakeSubscriber) Subscribe(topic string, handler func(payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.handlers[topic] = append(f.handlers[topic], handler)
	return nil
}

// Topics returns the number of handlers registered per topic.
func (f *FakeSubscriber) Topics() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.handlers))
	for t, hs := range f.handlers {
		out[t] = len(hs)
	}
	return out
}

// Deliver calls every handler subscribed to topic with payload.
// It reports whether any handler was called.
func (f *FakeSubscriber) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	hs := append(([]func([]byte))(nil), f.handlers[topic]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
	return len(hs) > 0
}
