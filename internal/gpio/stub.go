//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Bank is not available on non-Linux platforms.
type Bank struct{}

// NewBank returns an error on non-Linux platforms.
func NewBank(chipName string, activeLow bool) (*Bank, error) {
	return nil, errUnsupported
}

// Relay is not implemented on non-Linux platforms.
func (b *Bank) Relay(pin int) (*RealRelay, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (b *Bank) Close() error {
	return nil
}

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(on bool) error {
	return errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}
