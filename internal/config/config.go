// Package config loads the monitoring loop's own parameters: how often to
// sample and which profile to start with. Files are TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the file LoadDefault reads, relative to the working directory.
const DefaultPath = "config.toml"

// Config errors. Returned errors wrap one of these.
var (
	ErrLoad    = errors.New("config: load failed")
	ErrDecode  = errors.New("config: decode failed")
	ErrInvalid = errors.New("config: invalid")
)

// Configuration is replaced wholesale on reload, never edited in place.
type Configuration struct {
	// TimeDelay is the sample interval in seconds.
	TimeDelay uint64 `toml:"time_delay"`
	// DefaultProfile is the profile file loaded alongside this configuration.
	DefaultProfile string `toml:"default_profile"`

	// dir is the directory the configuration was loaded from.
	dir string
}

// Interval returns the sample interval.
func (c Configuration) Interval() time.Duration {
	return time.Duration(c.TimeDelay) * time.Second
}

// ProfilePath returns DefaultProfile, resolved against the directory of the
// file the configuration came from when it is relative.
func (c Configuration) ProfilePath() string {
	if c.DefaultProfile == "" || filepath.IsAbs(c.DefaultProfile) || c.dir == "" {
		return c.DefaultProfile
	}
	return filepath.Join(c.dir, c.DefaultProfile)
}

// Validate checks that the configuration can drive the loop.
func (c Configuration) Validate() error {
	if c.TimeDelay == 0 {
		return fmt.Errorf("%w: time_delay must be > 0", ErrInvalid)
	}
	if c.DefaultProfile == "" {
		return fmt.Errorf("%w: default_profile is required", ErrInvalid)
	}
	return nil
}

// LoadDefault loads DefaultPath from the working directory.
func LoadDefault() (Configuration, error) {
	return Load(DefaultPath)
}

// Load reads and validates a configuration file.
func Load(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var c Configuration
	if _, err := toml.Decode(string(data), &c); err != nil {
		return Configuration{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	if err := c.Validate(); err != nil {
		return Configuration{}, err
	}

	c.dir = filepath.Dir(path)
	return c, nil
}
