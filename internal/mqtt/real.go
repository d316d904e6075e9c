package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// Options configures a RealPublisher.
type Options struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	BufferLen int // messages held while disconnected
	Logger    *slog.Logger
}

// RealPublisher publishes to and subscribes on an actual MQTT broker.
// Messages published while the connection is down are buffered and replayed
// on reconnect; subscriptions are restored at the same time.
type RealPublisher struct {
	client paho.Client
	logger *slog.Logger

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]func([]byte)
}

// NewRealPublisher creates a publisher connected to the given broker.
// An OFFLINE system event is registered as the last will.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.BufferLen < 1 {
		o.BufferLen = 1
	}

	p := &RealPublisher{
		logger: o.Logger.With("component", "mqtt"),
		buf:    newRingBuffer(o.BufferLen, o.Logger),
		subs:   make(map[string]func([]byte)),
	}

	will, err := WillPayload()
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// WillPayload is the retained message the broker publishes if the daemon
// disappears without a clean shutdown.
func WillPayload() ([]byte, error) {
	return FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	subs := make(map[string]func([]byte), len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()

	p.logger.Info("connected", "replaying", len(pending))

	for topic, h := range subs {
		if err := p.subscribe(topic, h); err != nil {
			p.logger.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("replay failed", "topic", m.topic, "error", err)
		}
	}
}

// PublishConditions sends a snapshot, QoS 0, not retained.
func (p *RealPublisher) PublishConditions(snap conditions.Snapshot) error {
	payload, err := FormatConditions(snap)
	if err != nil {
		return fmt.Errorf("format conditions: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicConditions, payload: payload})
}

// PublishProfile sends the profile, QoS 1, retained so new subscribers see it.
func (p *RealPublisher) PublishProfile(pr profile.Profile) error {
	payload, err := FormatProfile(pr)
	if err != nil {
		return fmt.Errorf("format profile: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicProfile, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// publish sends now if connected, otherwise buffers for replay.
func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(m); err != nil {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription survives reconnects.
func (p *RealPublisher) Subscribe(topic string, handler func(payload []byte)) error {
	// onConnect copies subs under the same lock, so either it sees the new
	// entry or the connection is already open here.
	p.mu.Lock()
	p.subs[topic] = handler
	open := p.client.IsConnectionOpen()
	p.mu.Unlock()

	if !open {
		return nil
	}
	return p.subscribe(topic, handler)
}

func (p *RealPublisher) subscribe(topic string, handler func([]byte)) error {
	token := p.client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.buf.len(); n > 0 {
		p.logger.Warn("discarding buffered messages", "count", n)
	}
	p.mu.Unlock()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
