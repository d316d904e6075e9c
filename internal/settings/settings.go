// Package settings holds the daemon-level settings that are not part of the
// enclosure configuration: broker, GPIO lines, HTTP address, storage and logging.
//
// Settings are YAML. Load starts from Default, overlays the file, applies
// REPTILE_* environment overrides and validates the result.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Settings is the root of settings.yaml.
type Settings struct {
	MQTT    MQTTSettings    `yaml:"mqtt"`
	Sensors []SensorConfig  `yaml:"sensors"`
	GPIO    GPIOSettings    `yaml:"gpio"`
	HTTP    HTTPSettings    `yaml:"http"`
	History HistorySettings `yaml:"history"`
	Influx  InfluxSettings  `yaml:"influxdb"`
	Logging LoggingConfig   `yaml:"logging"`
}

// MQTTSettings configures the broker connection.
type MQTTSettings struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	BufferLen int    `yaml:"buffer_len"`
}

// SensorConfig declares one MQTT-fed sensor.
type SensorConfig struct {
	Name   string        `yaml:"name"`
	Topic  string        `yaml:"topic"`
	MaxAge time.Duration `yaml:"max_age"`
}

// GPIOSettings names the chip and relay lines. A pin of -1 disables that relay.
type GPIOSettings struct {
	Enabled   bool   `yaml:"enabled"`
	Chip      string `yaml:"chip"`
	ActiveLow bool   `yaml:"active_low"`
	Heater    int    `yaml:"heater"`
	Light     int    `yaml:"light"`
	Mister    int    `yaml:"mister"`
}

// HTTPSettings configures the status page. An empty Addr disables it.
type HTTPSettings struct {
	Addr string `yaml:"addr"`
}

// HistorySettings configures the sqlite recorder. An empty Path disables it.
// Snapshots older than Retention are pruned; zero keeps everything.
type HistorySettings struct {
	Path        string        `yaml:"path"`
	BusyTimeout int           `yaml:"busy_timeout"`
	Retention   time.Duration `yaml:"retention"`
}

// InfluxSettings configures the optional time-series writer.
type InfluxSettings struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     uint   `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns settings that run against a local broker with no GPIO.
func Default() Settings {
	return Settings{
		MQTT: MQTTSettings{
			Broker:    "tcp://localhost:1883",
			ClientID:  "reptile-core",
			BufferLen: 500,
		},
		GPIO: GPIOSettings{
			Chip:   "gpiochip0",
			Heater: 17,
			Light:  27,
			Mister: 22,
		},
		HTTP: HTTPSettings{Addr: ":8080"},
		History: HistorySettings{
			Path:        "reptile.db",
			BusyTimeout: 5,
			Retention:   30 * 24 * time.Hour,
		},
		Influx: InfluxSettings{
			URL:           "http://localhost:8086",
			Org:           "reptile",
			Bucket:        "enclosure",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads settings from path. A missing file is an error; callers that
// want defaults should not call Load.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings file: %w", err)
	}

	applyEnvOverrides(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating settings: %w", err)
	}
	return s, nil
}

// FromEnv returns Default with the REPTILE_* environment overrides applied.
func FromEnv() (Settings, error) {
	s := Default()
	applyEnvOverrides(&s)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating settings: %w", err)
	}
	return s, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("REPTILE_MQTT_BROKER"); v != "" {
		s.MQTT.Broker = v
	}
	if v := os.Getenv("REPTILE_MQTT_USERNAME"); v != "" {
		s.MQTT.Username = v
	}
	if v := os.Getenv("REPTILE_MQTT_PASSWORD"); v != "" {
		s.MQTT.Password = v
	}
	if v := os.Getenv("REPTILE_HTTP_ADDR"); v != "" {
		s.HTTP.Addr = v
	}
	if v := os.Getenv("REPTILE_HISTORY_PATH"); v != "" {
		s.History.Path = v
	}
	if v := os.Getenv("REPTILE_HISTORY_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.History.Retention = d
		}
	}
	if v := os.Getenv("REPTILE_INFLUXDB_TOKEN"); v != "" {
		s.Influx.Token = v
	}
	if v := os.Getenv("REPTILE_GPIO_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.GPIO.Enabled = b
		}
	}
	if v := os.Getenv("REPTILE_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
}

// Validate checks the settings for values the daemon cannot run with.
func (s Settings) Validate() error {
	if s.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required", ErrInvalid)
	}
	if s.MQTT.ClientID == "" {
		return fmt.Errorf("%w: mqtt.client_id is required", ErrInvalid)
	}
	if s.MQTT.BufferLen < 1 {
		return fmt.Errorf("%w: mqtt.buffer_len must be positive, got %d", ErrInvalid, s.MQTT.BufferLen)
	}

	seen := make(map[string]bool, len(s.Sensors))
	for i, sc := range s.Sensors {
		if sc.Name == "" {
			return fmt.Errorf("%w: sensors[%d].name is required", ErrInvalid, i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("%w: duplicate sensor name %q", ErrInvalid, sc.Name)
		}
		seen[sc.Name] = true
		if sc.Topic == "" {
			return fmt.Errorf("%w: sensors[%d].topic is required", ErrInvalid, i)
		}
		if sc.MaxAge < 0 {
			return fmt.Errorf("%w: sensors[%d].max_age must not be negative", ErrInvalid, i)
		}
	}

	if s.GPIO.Enabled {
		if s.GPIO.Chip == "" {
			return fmt.Errorf("%w: gpio.chip is required when gpio is enabled", ErrInvalid)
		}
		pins := map[int]string{}
		for name, pin := range map[string]int{"heater": s.GPIO.Heater, "light": s.GPIO.Light, "mister": s.GPIO.Mister} {
			if pin < 0 {
				continue
			}
			if other, dup := pins[pin]; dup {
				return fmt.Errorf("%w: gpio.%s and gpio.%s share pin %d", ErrInvalid, name, other, pin)
			}
			pins[pin] = name
		}
	}

	if s.Influx.Enabled {
		if s.Influx.URL == "" || s.Influx.Org == "" || s.Influx.Bucket == "" {
			return fmt.Errorf("%w: influxdb.url, org and bucket are required when enabled", ErrInvalid)
		}
		if s.Influx.FlushInterval < 1 {
			return fmt.Errorf("%w: influxdb.flush_interval must be positive", ErrInvalid)
		}
	}

	if s.History.Path != "" && s.History.BusyTimeout < 0 {
		return fmt.Errorf("%w: history.busy_timeout must not be negative", ErrInvalid)
	}
	if s.History.Retention < 0 {
		return fmt.Errorf("%w: history.retention must not be negative", ErrInvalid)
	}
	return nil
}
