// Package timeutil supplies the time sources used by the sensors: a Clock
// that can be swapped for a manually advanced one in tests, and a wrapping
// microsecond counter for reading timestamps.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source for bounded waits, scheduled captures and
// polling loops.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep blocks for d. MockClock only records the call.
	Sleep(d time.Duration)
	// NewTimer delivers one tick on C after d.
	NewTimer(d time.Duration) Timer
	// NewTicker delivers a tick on C every d, dropping ticks nobody reads.
	NewTicker(d time.Duration) Ticker
	// AfterFunc calls f once d has elapsed: on its own goroutine for
	// RealClock, from Advance for MockClock.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a one-shot timer. Timers made by AfterFunc never deliver on C.
type Timer interface {
	C() <-chan time.Time
	// Stop reports whether the timer was still pending.
	Stop() bool
}

// Ticker is a periodic timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

func (RealClock) NewTimer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return &realTimer{c: t.C, stop: t.Stop}
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	t := time.AfterFunc(d, f)
	return &realTimer{stop: t.Stop}
}

type realTimer struct {
	c    <-chan time.Time
	stop func() bool
}

func (t *realTimer) C() <-chan time.Time { return t.c }
func (t *realTimer) Stop() bool          { return t.stop() }

type realTicker struct{ t *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.t.C }
func (t realTicker) Stop()               { t.t.Stop() }

// MockClock only moves when Advance is called. Expired timers, tickers and
// AfterFunc callbacks run synchronously on the goroutine calling Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	timers  []*MockTimer
	tickers []*MockTicker
}

// NewMockClock returns a clock stopped at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep returns at once; the duration is kept for Sleeps.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep, in order.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Advance moves the clock forward by d and fires what has come due. A timer
// armed by a callback during Advance waits for the next call, even with a
// zero delay, so a capture chain advances one link per call.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := append([]*MockTimer(nil), c.timers...)
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.fire(now)
	}
	for _, t := range tickers {
		t.fire(now)
	}

	c.mu.Lock()
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done() {
			live = append(live, t)
		}
	}
	clear(c.timers[len(live):])
	c.timers = live
	c.mu.Unlock()
}

// Pending returns how many timers have neither fired nor been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	timers := append([]*MockTimer(nil), c.timers...)
	c.mu.Unlock()

	n := 0
	for _, t := range timers {
		if !t.done() {
			n++
		}
	}
	return n
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	return c.newTimer(d, nil)
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.newTimer(d, f)
}

func (c *MockClock) newTimer(d time.Duration, f func()) *MockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{ch: make(chan time.Time, 1), deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{ch: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTimer is a timer on a MockClock.
type MockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *MockTimer) C() <-chan time.Time { return t.ch }

func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

func (t *MockTimer) done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped || t.fired
}

func (t *MockTimer) fire(now time.Time) {
	t.mu.Lock()
	if t.stopped || t.fired || now.Before(t.deadline) {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	if fn == nil {
		t.ch <- now
	}
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// MockTicker is a ticker on a MockClock. However far Advance jumps, it
// delivers at most one tick per call.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.next = now.Add(t.interval)
}
