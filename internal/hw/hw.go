// Package hw declares the hardware primitives the plunger sensors are built
// on. Register-level implementations live outside this module; the sim
// subpackage provides a software backend for development and tests.
package hw

import "errors"

// ErrBusy is returned when a transfer is started while another is in flight.
var ErrBusy = errors.New("transfer already in flight")

// Transfer moves one frame of samples from a sensor's analog output into
// memory without CPU involvement.
type Transfer interface {
	// Start arms a transfer of len(dst) samples into dst. done is called
	// exactly once, from the transfer's own completion context, after the
	// last sample has landed. A transfer that never completes (a wiring
	// fault) never calls done.
	Start(dst []byte, done func()) error

	// Busy reports whether a transfer is in flight.
	Busy() bool
}

// ClockGen drives a sensor's pixel clock line while a transfer runs.
type ClockGen interface {
	Start(hz int) error
	Stop()
}

// Pin is a single digital output line.
type Pin interface {
	Set(high bool)
}

// ADC is a single-channel analog-to-digital converter scaled to 16 bits.
type ADC interface {
	ReadU16() (uint16, error)
}

// AngleSource is an absolute rotary encoder. ReadAngle returns the raw
// angle in counts, 0 to the encoder's scale maximum minus one.
type AngleSource interface {
	ReadAngle() (uint16, error)
}

// NopPin discards every level written to it.
type NopPin struct{}

func (NopPin) Set(bool) {}
