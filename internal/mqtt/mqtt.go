// Package mqtt publishes enclosure conditions, profile changes and system
// events to MQTT, and feeds sensor topics back in. Real and fake
// implementations share the interfaces here.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// Topics published by the daemon.
const (
	TopicConditions = "reptile/enclosure/conditions"
	TopicProfile    = "reptile/enclosure/profile"
	TopicSystem     = "reptile/enclosure/system"
)

// Publisher publishes to MQTT.
type Publisher interface {
	// PublishConditions sends a conditions snapshot (QoS 0, not retained).
	PublishConditions(snap conditions.Snapshot) error

	// PublishProfile sends the active profile (QoS 1, retained).
	PublishProfile(p profile.Profile) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers messages on a topic to a handler.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, reload).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RELOAD", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ConditionsPayload is the MQTT message body for a snapshot.
type ConditionsPayload struct {
	Conditions ConditionsInner `json:"conditions"`
}

// ConditionsInner contains the snapshot fields.
type ConditionsInner struct {
	Timestamp   string `json:"timestamp"`
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
	Light       string `json:"light"`
}

// FormatConditions creates the JSON payload for a snapshot.
func FormatConditions(snap conditions.Snapshot) ([]byte, error) {
	light := "OFF"
	if snap.LightOn {
		light = "ON"
	}
	return json.Marshal(ConditionsPayload{
		Conditions: ConditionsInner{
			Timestamp:   snap.Timestamp.UTC().Format(time.RFC3339),
			Temperature: snap.Temperature,
			Humidity:    snap.Humidity,
			Light:       light,
		},
	})
}

// ProfilePayload is the MQTT message body for the active profile.
type ProfilePayload struct {
	Profile ProfileInner `json:"profile"`
}

// ProfileInner contains the profile fields.
type ProfileInner struct {
	Name     string    `json:"name"`
	Temps    RangeJSON `json:"temps"`
	Humidity RangeJSON `json:"humidity"`
	Light    LightJSON `json:"light"`
}

// RangeJSON is a min/max pair.
type RangeJSON struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// LightJSON is the light schedule as HH:MM:SS strings.
type LightJSON struct {
	On  string `json:"on"`
	Off string `json:"off"`
}

// FormatProfile creates the JSON payload for a profile.
func FormatProfile(p profile.Profile) ([]byte, error) {
	return json.Marshal(ProfilePayload{
		Profile: ProfileInner{
			Name:     p.Name,
			Temps:    RangeJSON{Min: p.Temps.Min, Max: p.Temps.Max},
			Humidity: RangeJSON{Min: p.Humidity.Min, Max: p.Humidity.Max},
			Light:    LightJSON{On: p.Light.On.String(), Off: p.Light.Off.String()},
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
