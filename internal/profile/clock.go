package profile

import (
	"fmt"
	"time"
)

// ClockTime is a time of day without a date, stored in TOML as a local time
// (on = 08:00:00). Quoted strings in HH:MM or HH:MM:SS form are also accepted.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// String formats the time as HH:MM:SS.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

func (c ClockTime) seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

func (c ClockTime) validate() error {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return fmt.Errorf("time of day out of range: %s", c)
	}
	return nil
}

// MarshalTOML writes the value as a bare TOML local time.
func (c ClockTime) MarshalTOML() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalTOML accepts a TOML local time or a string.
func (c *ClockTime) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case time.Time:
		*c = ClockTime{Hour: val.Hour(), Minute: val.Minute(), Second: val.Second()}
		return nil
	case string:
		parsed, err := ParseClock(val)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	default:
		return fmt.Errorf("unsupported time of day value %T", v)
	}
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
}
