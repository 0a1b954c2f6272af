package serialport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds each Read on a real port.
const DefaultReadTimeout = 100 * time.Millisecond

// Open opens the serial port at path with opts and a bounded read timeout.
func Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// List returns the serial ports visible to the OS.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
