// Package imaging drives a linear image sensor through a pair of frame
// buffers so that one frame is read out by the transfer hardware while the
// previous one is processed.
package imaging

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

var (
	// ErrTimeout is returned by WaitPix when no frame arrives in time.
	ErrTimeout = errors.New("imaging: timed out waiting for frame")
	// ErrRunning is returned by StartCapture while continuous capture runs.
	ErrRunning = errors.New("imaging: continuous capture running")
)

// pollInterval is the granularity of WaitPix.
const pollInterval = 20 * time.Microsecond

// Config holds the acquisition parameters.
type Config struct {
	Profile Profile
	// PixelClockHz is clamped to the profile's maximum.
	PixelClockHz int
	// MinIntegration is the shortest time between integration pulses.
	// Zero captures back to back.
	MinIntegration time.Duration
}

// Stats summarizes transfer timing in microseconds.
type Stats struct {
	Frames   uint32 // completed transfers
	Handoffs uint32 // frames handed to the consumer
	Overruns uint32 // frames recaptured because the consumer held its buffer
	Last     uint32
	Min      uint32
	Max      uint32
	Avg      uint32
}

// Engine owns two frame buffers. At any instant one (active) belongs to the
// transfer and the other (stable) belongs to the consumer. Ownership of the
// stable buffer is a single flag: only the capture path sets it, when handing
// over a freshly filled buffer, and only the consumer clears it, in
// ReleasePix. The capture path never swaps while the flag is set, so a
// consumer holding its buffer only causes the next frame to be captured
// again into the active buffer.
type Engine struct {
	cfg    Config
	xfer   hw.Transfer
	pclk   hw.ClockGen
	lines  Lines
	clock  timeutil.Clock
	micros *timeutil.MicroClock

	bufs [2][]byte
	ts   [2]atomic.Uint32

	active     atomic.Int32
	clientOwns atomic.Bool
	inFlight   atomic.Bool
	running    atomic.Bool

	// Touched only by the capture path, which is serialized by inFlight.
	primed    bool
	filled    bool
	intStart  uint32
	xferStart uint32

	frames, handoffs, overruns atomic.Uint32
	lastScan, minScan, maxScan atomic.Uint32
	totalScan                  atomic.Uint64
}

// NewEngine returns an idle engine. The micro clock supplies timestamps and
// its underlying clock schedules delayed captures.
func NewEngine(cfg Config, xfer hw.Transfer, pclk hw.ClockGen, lines Lines, micros *timeutil.MicroClock) *Engine {
	if cfg.PixelClockHz <= 0 || cfg.PixelClockHz > cfg.Profile.MaxPixelClockHz {
		cfg.PixelClockHz = cfg.Profile.MaxPixelClockHz
	}
	if lines.Start == nil {
		lines.Start = hw.NopPin{}
	}
	if lines.Shift == nil {
		lines.Shift = hw.NopPin{}
	}
	e := &Engine{
		cfg:    cfg,
		xfer:   xfer,
		pclk:   pclk,
		lines:  lines,
		clock:  micros.Clock(),
		micros: micros,
	}
	e.bufs[0] = make([]byte, cfg.Profile.Samples)
	e.bufs[1] = make([]byte, cfg.Profile.Samples)
	e.minScan.Store(math.MaxUint32)
	return e
}

// Profile returns the sensor profile.
func (e *Engine) Profile() Profile {
	return e.cfg.Profile
}

// PixelClockHz returns the effective pixel clock.
func (e *Engine) PixelClockHz() int {
	return e.cfg.PixelClockHz
}

// Start begins continuous capture: every completed transfer schedules the
// next one.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	if err := e.startCapture(); err != nil {
		e.running.Store(false)
		return err
	}
	return nil
}

// Stop ends continuous capture after the in-flight transfer.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether continuous capture is on.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// StartCapture captures a single frame. It is for manual operation; while
// continuous capture runs the engine arms its own captures.
func (e *Engine) StartCapture() error {
	if e.running.Load() {
		return ErrRunning
	}
	return e.startCapture()
}

func (e *Engine) startCapture() error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return hw.ErrBusy
	}

	now := e.micros.Micros()
	if !e.primed {
		e.intStart = now
		e.primed = true
	}
	act := e.active.Load()
	if e.filled {
		if !e.clientOwns.Load() {
			act = 1 - act
			e.active.Store(act)
			e.clientOwns.Store(true)
			e.handoffs.Add(1)
		} else {
			e.overruns.Add(1)
		}
	}
	e.filled = false

	e.cfg.Profile.Integrate(e.lines)
	e.ts[act].Store(timeutil.MidpointMicros(e.intStart, now))
	e.intStart = now
	e.xferStart = now

	if err := e.pclk.Start(e.cfg.PixelClockHz); err != nil {
		e.inFlight.Store(false)
		return fmt.Errorf("imaging: failed to start pixel clock: %w", err)
	}
	if err := e.xfer.Start(e.bufs[act], e.onTransferDone); err != nil {
		e.pclk.Stop()
		e.inFlight.Store(false)
		return fmt.Errorf("imaging: failed to start transfer: %w", err)
	}
	return nil
}

// onTransferDone runs in the transfer's completion context. It records the
// transfer time and arms the next capture, delayed if needed so that each
// integration period lasts at least MinIntegration.
func (e *Engine) onTransferDone() {
	e.pclk.Stop()
	now := e.micros.Micros()
	e.recordScan(timeutil.ElapsedMicros(e.xferStart, now))
	e.filled = true
	e.frames.Add(1)

	if !e.running.Load() {
		// A single-shot frame is handed over immediately, still under
		// inFlight so a concurrent StartCapture cannot swap alongside.
		e.handOff()
		e.inFlight.Store(false)
		return
	}
	integrated := time.Duration(timeutil.ElapsedMicros(e.intStart, now)) * time.Microsecond
	e.inFlight.Store(false)

	if wait := e.cfg.MinIntegration - integrated; wait > 0 {
		e.clock.AfterFunc(wait, e.nextCapture)
		return
	}
	e.nextCapture()
}

func (e *Engine) nextCapture() {
	if !e.running.Load() {
		return
	}
	if err := e.startCapture(); err != nil {
		monitoring.Logf("imaging: %s capture not armed: %v", e.cfg.Profile.Name, err)
	}
}

// handOff gives a filled active buffer to the consumer without starting a
// new transfer.
func (e *Engine) handOff() {
	if !e.filled || e.clientOwns.Load() {
		return
	}
	e.active.Store(1 - e.active.Load())
	e.clientOwns.Store(true)
	e.handoffs.Add(1)
	e.filled = false
}

func (e *Engine) recordScan(us uint32) {
	e.lastScan.Store(us)
	e.totalScan.Add(uint64(us))
	if us < e.minScan.Load() {
		e.minScan.Store(us)
	}
	if us > e.maxScan.Load() {
		e.maxScan.Store(us)
	}
}

// Ready reports whether a frame is waiting for the consumer.
func (e *Engine) Ready() bool {
	return e.clientOwns.Load()
}

// Pix returns the stable buffer and the midpoint of its integration period
// in microseconds. The buffer belongs to the caller until ReleasePix. ok is
// false when no new frame has been handed over since the last release.
func (e *Engine) Pix() (pix []byte, t uint32, ok bool) {
	if !e.clientOwns.Load() {
		return nil, 0, false
	}
	s := 1 - e.active.Load()
	return e.bufs[s], e.ts[s].Load(), true
}

// WaitPix polls for a frame for at most timeout.
func (e *Engine) WaitPix(timeout time.Duration) ([]byte, uint32, error) {
	deadline := e.clock.Now().Add(timeout)
	polls := int(timeout / pollInterval)
	for i := 0; ; i++ {
		if pix, t, ok := e.Pix(); ok {
			return pix, t, nil
		}
		if i >= polls || !e.clock.Now().Before(deadline) {
			return nil, 0, ErrTimeout
		}
		e.clock.Sleep(pollInterval)
	}
}

// ReleasePix returns the stable buffer to the engine. The next completed
// transfer will hand over a new frame.
func (e *Engine) ReleasePix() {
	e.clientOwns.Store(false)
}

// AvgScanTime returns the mean transfer time in microseconds.
func (e *Engine) AvgScanTime() uint32 {
	n := e.frames.Load()
	if n == 0 {
		return 0
	}
	return uint32(e.totalScan.Load() / uint64(n))
}

// Stats returns a snapshot of the timing counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Frames:   e.frames.Load(),
		Handoffs: e.handoffs.Load(),
		Overruns: e.overruns.Load(),
		Last:     e.lastScan.Load(),
		Max:      e.maxScan.Load(),
		Avg:      e.AvgScanTime(),
	}
	if s.Frames > 0 {
		s.Min = e.minScan.Load()
	}
	return s
}
