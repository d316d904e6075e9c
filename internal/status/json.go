package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Ready         bool              `json:"ready"`
	Conditions    ConditionsJSON    `json:"conditions"`
	Profile       ProfileJSON       `json:"profile"`
	Relays        map[string]string `json:"relays"`
	Ticks         int               `json:"ticks"`
	MissedTicks   int               `json:"missed_ticks"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Network       *NetworkJSON      `json:"network,omitempty"`
	Config        ConfigJSON        `json:"config"`
}

// ConditionsJSON is the last measured conditions. Timestamp is empty before
// the first measurement.
type ConditionsJSON struct {
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
	Light       string `json:"light"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// ProfileJSON is the active profile.
type ProfileJSON struct {
	Name        string `json:"name"`
	TempMin     int    `json:"temp_min"`
	TempMax     int    `json:"temp_max"`
	HumidityMin int    `json:"humidity_min"`
	HumidityMax int    `json:"humidity_max"`
	LightOn     string `json:"light_on"`
	LightOff    string `json:"light_off"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalSeconds int64    `json:"interval_seconds"`
	ConfigPath      string   `json:"config_path"`
	Broker          string   `json:"broker"`
	HTTPAddr        string   `json:"http_addr"`
	Sensors         []string `json:"sensors"`
	InstanceID      string   `json:"instance_id,omitempty"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	c := ConditionsJSON{
		Temperature: snap.Conditions.Temperature,
		Humidity:    snap.Conditions.Humidity,
		Light:       onOff(snap.Conditions.LightOn),
	}
	if snap.Ready() {
		c.Timestamp = snap.Conditions.Timestamp.UTC().Format(time.RFC3339)
	} else {
		c.Light = "UNKNOWN"
	}

	relays := make(map[string]string, len(snap.Relays))
	for _, r := range snap.Relays {
		relays[r.Name] = onOff(r.On)
	}

	sensors := snap.Config.Sensors
	if sensors == nil {
		sensors = []string{}
	}

	p := snap.Profile
	return StatusInner{
		Ready:      snap.Ready(),
		Conditions: c,
		Profile: ProfileJSON{
			Name:        p.Name,
			TempMin:     p.Temps.Min,
			TempMax:     p.Temps.Max,
			HumidityMin: p.Humidity.Min,
			HumidityMax: p.Humidity.Max,
			LightOn:     p.Light.On.String(),
			LightOff:    p.Light.Off.String(),
		},
		Relays:        relays,
		Ticks:         snap.Ticks,
		MissedTicks:   snap.MissedTicks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			IntervalSeconds: int64(snap.Config.Interval / time.Second),
			ConfigPath:      snap.Config.ConfigPath,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			Sensors:         sensors,
			InstanceID:      snap.Config.InstanceID,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the indented JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
