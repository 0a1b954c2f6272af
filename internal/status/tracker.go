// Package status tracks the plunger sensor's readings for diagnostics: the
// last good position, failure counts, a short history and live subscribers.
package status

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/plunger"
)

// Tracker wraps a sensor and records the outcome of every read. Poll is
// called from the reading goroutine; every other method is safe to call from
// HTTP handlers.
type Tracker struct {
	kind   string
	sensor plunger.Sensor

	mu          sync.RWMutex
	last        plunger.Reading
	haveLast    bool
	reads       uint64
	failures    uint64
	streak      int
	calibrating bool
	history     []plunger.Reading
	head        int
	full        bool

	subMu       sync.Mutex
	subscribers map[string]chan plunger.Reading
	closed      bool
}

// NewTracker returns a tracker for sensor keeping historyLen recent readings.
func NewTracker(kind string, sensor plunger.Sensor, historyLen int) *Tracker {
	if historyLen <= 0 {
		historyLen = 1
	}
	return &Tracker{
		kind:        kind,
		sensor:      sensor,
		history:     make([]plunger.Reading, historyLen),
		subscribers: make(map[string]chan plunger.Reading),
	}
}

// Sensor returns the tracked sensor.
func (t *Tracker) Sensor() plunger.Sensor {
	return t.sensor
}

// Kind returns the configured sensor type.
func (t *Tracker) Kind() string {
	return t.kind
}

// Poll reads the sensor once and returns the last good reading, which is the
// new one when the read succeeded.
func (t *Tracker) Poll() (plunger.Reading, bool) {
	r, ok := t.sensor.Read()
	t.Observe(r, ok)
	return t.Last()
}

// Observe records the outcome of one read.
func (t *Tracker) Observe(r plunger.Reading, ok bool) {
	t.mu.Lock()
	t.reads++
	if !ok {
		t.failures++
		t.streak++
		t.mu.Unlock()
		return
	}
	t.streak = 0
	t.last = r
	t.haveLast = true
	t.history[t.head] = r
	t.head = (t.head + 1) % len(t.history)
	if t.head == 0 {
		t.full = true
	}
	t.mu.Unlock()

	t.publish(r)
}

// Last returns the most recent good reading.
func (t *Tracker) Last() (plunger.Reading, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.haveLast
}

// NeverRead reports whether no read has succeeded yet.
func (t *Tracker) NeverRead() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.haveLast
}

// FailStreak returns the number of consecutive failed reads.
func (t *Tracker) FailStreak() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streak
}

// SetCalibrating records whether a calibration pass is running.
func (t *Tracker) SetCalibrating(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calibrating = on
}

// History returns the recorded readings, oldest first.
func (t *Tracker) History() []plunger.Reading {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.full {
		return append([]plunger.Reading(nil), t.history[:t.head]...)
	}
	out := make([]plunger.Reading, 0, len(t.history))
	out = append(out, t.history[t.head:]...)
	return append(out, t.history[:t.head]...)
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel receiving every good reading. Slow subscribers
// miss readings rather than stall the reader.
func (t *Tracker) Subscribe() (string, <-chan plunger.Reading) {
	id := randomID()
	ch := make(chan plunger.Reading, 16)
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if t.closed {
		close(ch)
		return id, ch
	}
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tracker) Unsubscribe(id string) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Close closes every subscriber channel.
func (t *Tracker) Close() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.closed = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
}

func (t *Tracker) publish(r plunger.Reading) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

// SnapshotOptions selects the optional parts of a Snapshot.
type SnapshotOptions struct {
	// Pixels includes the last image sensor frame.
	Pixels bool
	// LowRes averages the frame by 1, 2, 4 or 8 pixels.
	LowRes int
}

// Snapshot is the diagnostic view of the sensor.
type Snapshot struct {
	Kind        string          `json:"kind"`
	Reading     plunger.Reading `json:"reading"`
	HaveReading bool            `json:"have_reading"`
	NeverRead   bool            `json:"never_read"`
	Reads       uint64          `json:"reads"`
	Failures    uint64          `json:"failures"`
	FailStreak  int             `json:"fail_streak"`
	Calibrating bool            `json:"calibrating"`
	Direction   int8            `json:"direction"`
	AvgScanTime uint32          `json:"avg_scan_us"`

	Engine     *imaging.Stats `json:"engine,omitempty"`
	Pixels     []byte         `json:"pixels,omitempty"`
	PixelsT    uint32         `json:"pixels_t,omitempty"`
	LowRes     int            `json:"low_res,omitempty"`
	Brightness *PixelStats    `json:"brightness,omitempty"`
}

// Snapshot collects the current state.
func (t *Tracker) Snapshot(o SnapshotOptions) (Snapshot, error) {
	t.mu.RLock()
	s := Snapshot{
		Kind:        t.kind,
		Reading:     t.last,
		HaveReading: t.haveLast,
		NeverRead:   !t.haveLast,
		Reads:       t.reads,
		Failures:    t.failures,
		FailStreak:  t.streak,
		Calibrating: t.calibrating,
	}
	t.mu.RUnlock()

	s.AvgScanTime = t.sensor.AvgScanTime()
	if d, ok := t.sensor.(plunger.Directional); ok {
		s.Direction = d.Direction()
	}
	if c, ok := t.sensor.(*plunger.CCD); ok {
		st := c.Engine().Stats()
		s.Engine = &st
	}

	if !o.Pixels {
		return s, nil
	}
	src, ok := t.sensor.(plunger.FrameSource)
	if !ok {
		return s, nil
	}
	pix, ts, ok := src.LastFrame(nil)
	if !ok {
		return s, nil
	}
	stats := Brightness(pix)
	s.Brightness = &stats
	factor := o.LowRes
	if factor == 0 {
		factor = 1
	}
	low, err := Downsample(pix, factor)
	if err != nil {
		return s, err
	}
	s.Pixels = low
	s.PixelsT = ts
	s.LowRes = factor
	return s, nil
}
