// Package serialport opens and abstracts the UART used by serial plunger
// sensors so the frame readers can be tested without hardware.
package serialport

import (
	"errors"
	"io"
	"time"
)

// ErrClosed is returned by test ports after Close.
var ErrClosed = errors.New("serial port closed")

// SerialPorter defines the minimal interface needed for a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with a read timeout. go.bug.st/serial
// ports implement it; frame readers use it so a silent sensor cannot wedge a
// reader goroutine forever.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a serial port at path. Open is the production implementation.
type Opener func(path string, opts PortOptions) (SerialPorter, error)
