//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Bank owns an open GPIO chip and hands out relay lines on it.
type Bank struct {
	chip      *gpiocdev.Chip
	activeLow bool
}

// NewBank opens the named chip. activeLow inverts every line requested from
// it, for relay boards that energise on a low output.
func NewBank(chipName string, activeLow bool) (*Bank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Bank{chip: chip, activeLow: activeLow}, nil
}

// Relay requests pin as an output, initially off.
func (b *Bank) Relay(pin int) (*RealRelay, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("reptile-core")}
	if b.activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := b.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealRelay{line: line, pin: pin}, nil
}

// Close releases the chip. Relays must be closed first.
func (b *Bank) Close() error {
	if err := b.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// RealRelay drives one output line.
type RealRelay struct {
	line *gpiocdev.Line
	pin  int
}

// Set writes the logical relay state; active-low inversion is done by the kernel.
func (r *RealRelay) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay pin %d: %w", r.pin, err)
	}
	return nil
}

// Close drives the relay off before releasing the line, so nothing is left
// energised after shutdown.
func (r *RealRelay) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch off pin %d: %w", r.pin, err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", r.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
