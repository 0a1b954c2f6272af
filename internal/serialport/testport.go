package serialport

import (
	"bytes"
	"sync"
	"time"
)

// TestableSerialPort implements TimeoutSerialPorter with scripted input for
// tests and the simulated backend. Reads block until data arrives, the port
// closes, or the read timeout (if set) elapses.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout; zero blocks indefinitely
	ReadTimeout time.Duration

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read returns buffered data, waiting for more when the buffer is empty.
// A timed-out read returns 0, nil like go.bug.st/serial does.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadBuffer.Len() == 0 && !t.Closed {
		var timer *time.Timer
		expired := false
		if t.ReadTimeout > 0 {
			timer = time.AfterFunc(t.ReadTimeout, func() {
				t.mu.Lock()
				expired = true
				t.mu.Unlock()
				t.readCond.Broadcast()
			})
		}
		for !t.Closed && !expired && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if timer != nil {
			timer.Stop()
		}
	}

	if t.ReadBuffer.Len() == 0 {
		if t.Closed {
			return 0, ErrClosed
		}
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write captures p in WriteBuffer.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}
