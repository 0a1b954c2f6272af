package serialport

import (
	"errors"
	"testing"
	"time"
)

func TestTestableSerialPort_ReadWrite(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{0x59, 0x59})

	buf := make([]byte, 8)
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 || buf[0] != 0x59 {
		t.Errorf("Read() = %d bytes %x", n, buf[:n])
	}

	if _, err := port.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := string(port.GetWrittenData()); got != "ping" {
		t.Errorf("GetWrittenData() = %q, want ping", got)
	}
}

func TestTestableSerialPort_ReadTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	if err := port.SetReadTimeout(5 * time.Millisecond); err != nil {
		t.Fatalf("SetReadTimeout() error = %v", err)
	}

	n, err := port.Read(make([]byte, 4))
	if n != 0 || err != nil {
		t.Errorf("timed out Read() = %d, %v; want 0, nil", n, err)
	}
}

func TestTestableSerialPort_CloseWakesReader(t *testing.T) {
	port := NewTestableSerialPort()
	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	port.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Read() after Close = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked reader")
	}
}

func TestTestableSerialPort_ReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("framing error")

	if _, err := port.Read(make([]byte, 1)); err == nil {
		t.Error("expected scripted read error")
	}
	port.AddReadData([]byte{1})
	if _, err := port.Read(make([]byte, 1)); err != nil {
		t.Errorf("second Read() error = %v, want nil", err)
	}
}
