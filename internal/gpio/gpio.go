// Package gpio drives enclosure relays (heater, light, mister) with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Relay is a single on/off output.
type Relay interface {
	// Set switches the relay. true = energised.
	Set(on bool) error

	// Close switches the relay off and releases the line.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	PinHeater = 17
	PinLight  = 27
	PinMister = 22
)

// DefaultChip is the Raspberry Pi header's GPIO chip.
const DefaultChip = "gpiochip0"
