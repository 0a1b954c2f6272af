package plunger

import (
	"sync"

	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/rotary"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// RotaryConfig tunes a rotary encoder plunger.
type RotaryConfig struct {
	rotary.Config
	// Reverse is set when the encoder counts down as the plunger retracts.
	Reverse bool
}

// Rotary reads the plunger through an absolute rotary encoder on a
// mechanical linkage.
type Rotary struct {
	src    hw.AngleSource
	micros *timeutil.MicroClock
	cfg    RotaryConfig
	// scaleMax is the encoder resolution after defaults.
	scaleMax int

	mu       sync.Mutex
	cal      *rotary.Calibrator
	restored bool
	release  releaseTimer

	scanTotal, scans uint64
}

// releaseTimer measures how long the plunger takes to travel from near full
// retraction back to park during calibration.
type releaseTimer struct {
	peak     int
	lastHigh uint32
	armed    bool
	millis   uint8
}

func (r *releaseTimer) reset() {
	*r = releaseTimer{}
}

func (r *releaseTimer) observe(biased int, t uint32) {
	if biased > r.peak {
		r.peak = biased
	}
	if r.peak <= 0 {
		return
	}
	if biased*10 >= r.peak*9 {
		r.lastHigh = t
		r.armed = true
		return
	}
	if r.armed && biased <= 0 {
		ms := timeutil.ElapsedMicros(r.lastHigh, t) / 1000
		if ms < 1 {
			ms = 1
		} else if ms > 255 {
			ms = 255
		}
		r.millis = uint8(ms)
		r.armed = false
	}
}

// NewRotary returns a sensor reading angles from src.
func NewRotary(src hw.AngleSource, micros *timeutil.MicroClock, cfg RotaryConfig) *Rotary {
	scaleMax := cfg.ScaleMax
	if scaleMax <= 0 {
		scaleMax = rotary.DefaultConfig().ScaleMax
	}
	return &Rotary{
		src:      src,
		micros:   micros,
		cfg:      cfg,
		scaleMax: scaleMax,
		cal:      rotary.New(cfg.Config),
	}
}

// Init seeds the park angle from the live reading unless a saved calibration
// was already restored.
func (s *Rotary) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.restored {
		live, ok := s.readRaw()
		if !ok {
			monitoring.Logf("plunger: rotary encoder not responding at init, assuming park at 0")
		}
		s.cal.Restore(false, 0, 0, live)
	}
	return nil
}

func (s *Rotary) readRaw() (uint16, bool) {
	raw, err := s.src.ReadAngle()
	if err != nil {
		monitoring.Debugf("plunger: rotary read: %v", err)
		return 0, false
	}
	if s.cfg.Reverse {
		raw = uint16((s.scaleMax - int(raw)%s.scaleMax) % s.scaleMax)
	}
	return raw, true
}

func (s *Rotary) Read() (Reading, bool) {
	t0 := s.micros.Micros()
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.readRaw()
	t1 := s.micros.Micros()
	if !ok {
		return Reading{}, false
	}
	s.scanTotal += uint64(timeutil.ElapsedMicros(t0, t1))
	s.scans++

	t := timeutil.MidpointMicros(t0, t1)
	b := s.cal.Unwrap(raw)
	if s.cal.Calibrating() {
		s.release.observe(b, t)
	}
	return Reading{Pos: clampNative(s.cal.BiasedToLinear(b)), T: t}, true
}

func (s *Rotary) AvgScanTime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scans == 0 {
		return 0
	}
	return uint32(s.scanTotal / s.scans)
}

func (s *Rotary) BeginCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.readRaw()
	s.cal.Begin(live, ok)
	s.release.reset()
}

func (s *Rotary) EndCalibration(rec *CalibrationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, _ := s.cal.Observed()
	raw0, raw1 := s.cal.End()
	rec.Calibrated = true
	rec.Raw0 = raw0
	rec.Raw1 = raw1
	rec.Zero = clampNative(s.cal.Zero())
	rec.Min = clampNative(s.cal.BiasedToLinear(lo))
	rec.Max = NativeMax
	if s.release.millis > 0 {
		rec.TRelease = s.release.millis
	} else if rec.TRelease == 0 {
		rec.TRelease = DefaultReleaseMillis
	}
}

func (s *Rotary) RestoreCalibration(rec *CalibrationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, _ := s.readRaw()
	s.cal.Restore(rec.Calibrated, rec.Raw0, rec.Raw1, live)
	if rec.Calibrated {
		s.cal.SetZero(int(rec.Zero))
	}
	s.restored = true
}

// Calibrating reports whether a calibration pass is running.
func (s *Rotary) Calibrating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Calibrating()
}
