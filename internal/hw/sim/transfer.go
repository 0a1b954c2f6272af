package sim

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// Transfer completes each frame after one pixel clock period per sample,
// filling it from Fill at completion time.
type Transfer struct {
	clock timeutil.Clock
	fill  func(dst []byte)

	samplePeriod atomic.Int64 // nanoseconds
	busy         atomic.Bool
	disconnected atomic.Bool
	started      atomic.Uint32
}

// NewTransfer returns a transfer clocked at hz.
func NewTransfer(clock timeutil.Clock, hz int, fill func(dst []byte)) *Transfer {
	t := &Transfer{clock: clock, fill: fill}
	t.SetPixelClock(hz)
	return t
}

// SetPixelClock changes the sample rate for subsequent transfers.
func (t *Transfer) SetPixelClock(hz int) {
	if hz <= 0 {
		hz = 1_000_000
	}
	t.samplePeriod.Store(int64(time.Second) / int64(hz))
}

// Duration returns how long a transfer of n samples takes.
func (t *Transfer) Duration(n int) time.Duration {
	return time.Duration(t.samplePeriod.Load() * int64(n))
}

// Disconnect makes transfers never complete, as with a broken sensor cable.
func (t *Transfer) Disconnect(off bool) {
	t.disconnected.Store(off)
}

// Started returns the number of transfers started.
func (t *Transfer) Started() uint32 {
	return t.started.Load()
}

func (t *Transfer) Start(dst []byte, done func()) error {
	if !t.busy.CompareAndSwap(false, true) {
		return hw.ErrBusy
	}
	t.started.Add(1)
	t.clock.AfterFunc(t.Duration(len(dst)), func() {
		if t.disconnected.Load() {
			return
		}
		if t.fill != nil {
			t.fill(dst)
		}
		t.busy.Store(false)
		done()
	})
	return nil
}

func (t *Transfer) Busy() bool {
	return t.busy.Load()
}

// ClockGen records pixel clock activity.
type ClockGen struct {
	running atomic.Bool
	hz      atomic.Int64
	starts  atomic.Uint32
	// FailStart makes Start fail when set.
	FailStart atomic.Bool
}

var errClockFault = errors.New("sim: pixel clock fault")

func (c *ClockGen) Start(hz int) error {
	if c.FailStart.Load() {
		return errClockFault
	}
	c.hz.Store(int64(hz))
	c.running.Store(true)
	c.starts.Add(1)
	return nil
}

func (c *ClockGen) Stop() { c.running.Store(false) }

// Running reports whether the clock is on.
func (c *ClockGen) Running() bool { return c.running.Load() }

// Hz returns the last requested frequency.
func (c *ClockGen) Hz() int { return int(c.hz.Load()) }

// Starts returns how many times the clock was started.
func (c *ClockGen) Starts() uint32 { return c.starts.Load() }

// PinLog records level changes on named pins in order.
type PinLog struct {
	mu     sync.Mutex
	events []string
}

// Pin returns a pin that records to the log under name.
func (l *PinLog) Pin(name string) hw.Pin {
	return &logPin{log: l, name: name}
}

// Events returns the recorded changes as "NAME=0/1" strings.
func (l *PinLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// Reset clears the log.
func (l *PinLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type logPin struct {
	log  *PinLog
	name string
}

func (p *logPin) Set(high bool) {
	v := "0"
	if high {
		v = "1"
	}
	p.log.mu.Lock()
	p.log.events = append(p.log.events, p.name+"="+v)
	p.log.mu.Unlock()
}
