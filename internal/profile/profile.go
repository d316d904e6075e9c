// Package profile holds the acceptable-conditions profile for an enclosure:
// temperature and humidity ranges plus the light schedule. Profiles are
// stored as TOML documents.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Profile errors. Returned errors wrap one of these.
var (
	ErrLoad    = errors.New("profile: load failed")
	ErrDecode  = errors.New("profile: decode failed")
	ErrEncode  = errors.New("profile: encode failed")
	ErrSave    = errors.New("profile: save failed")
	ErrInvalid = errors.New("profile: invalid")
)

// Profile describes the environment a reptile needs.
// It is a value type; replace it wholesale rather than mutating a shared copy.
type Profile struct {
	Name     string   `toml:"name"`
	Temps    Range    `toml:"temps"`
	Humidity Range    `toml:"humidity"`
	Light    Schedule `toml:"light"`
}

// Range is an inclusive min/max band.
type Range struct {
	Max int `toml:"max"`
	Min int `toml:"min"`
}

// Contains reports whether v lies inside the band.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Default returns the built-in profile used when nothing else is configured.
func Default() Profile {
	return Profile{
		Name:     "Default Reptile",
		Temps:    Range{Min: 25, Max: 30},
		Humidity: Range{Min: 30, Max: 100},
		Light: Schedule{
			On:  ClockTime{},
			Off: ClockTime{Hour: 12},
		},
	}
}

// Validate checks the range invariants.
func (p Profile) Validate() error {
	if p.Temps.Min > p.Temps.Max {
		return fmt.Errorf("%w: temps.min %d > temps.max %d", ErrInvalid, p.Temps.Min, p.Temps.Max)
	}
	if p.Humidity.Min > p.Humidity.Max {
		return fmt.Errorf("%w: humidity.min %d > humidity.max %d", ErrInvalid, p.Humidity.Min, p.Humidity.Max)
	}
	if err := p.Light.On.validate(); err != nil {
		return fmt.Errorf("%w: light.on: %v", ErrInvalid, err)
	}
	if err := p.Light.Off.validate(); err != nil {
		return fmt.Errorf("%w: light.off: %v", ErrInvalid, err)
	}
	return nil
}

// Load reads and validates a profile from a TOML file.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var p Profile
	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	// All four sections are required; a half-written file is not a profile.
	for _, key := range []string{"name", "temps", "humidity", "light"} {
		if !md.IsDefined(key) {
			return Profile{}, fmt.Errorf("%w: %s: missing %q", ErrDecode, path, key)
		}
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Save writes p to path as TOML, replacing any existing file.
func Save(path string, p Profile) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// Schedule holds the daily on and off times for the enclosure lights.
type Schedule struct {
	On  ClockTime `toml:"on"`
	Off ClockTime `toml:"off"`
}

// IsOn reports whether the lights should be on at the wall-clock time of t.
// An off time earlier than the on time wraps past midnight.
// Equal on and off times mean the lights stay off.
func (s Schedule) IsOn(t time.Time) bool {
	now := ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}.seconds()
	on, off := s.On.seconds(), s.Off.seconds()

	switch {
	case on == off:
		return false
	case on < off:
		return now >= on && now < off
	default:
		return now >= on || now < off
	}
}
