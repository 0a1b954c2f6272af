package plunger

import (
	"sync/atomic"

	"github.com/banshee-data/plunger.sense/internal/filter"
	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// PotConfig tunes a potentiometer plunger.
type PotConfig struct {
	// Samples is how many ADC conversions are averaged per reading.
	Samples         int
	JitterHistory   int
	JitterTolerance int
	Reverse         bool
}

// Potentiometer reads a slide potentiometer whose wiper follows the plunger.
type Potentiometer struct {
	adc    hw.ADC
	micros *timeutil.MicroClock
	cfg    PotConfig
	jitter *filter.JitterFilter

	scanTotal atomic.Uint64
	scans     atomic.Uint64
}

// NewPotentiometer returns a sensor sampling adc.
func NewPotentiometer(adc hw.ADC, micros *timeutil.MicroClock, cfg PotConfig) *Potentiometer {
	if cfg.Samples <= 0 {
		cfg.Samples = 1
	}
	return &Potentiometer{
		adc:    adc,
		micros: micros,
		cfg:    cfg,
		jitter: filter.NewJitterFilter(cfg.JitterHistory, cfg.JitterTolerance),
	}
}

func (s *Potentiometer) Init() error { return nil }

func (s *Potentiometer) Read() (Reading, bool) {
	t0 := s.micros.Micros()
	sum := 0
	for i := 0; i < s.cfg.Samples; i++ {
		v, err := s.adc.ReadU16()
		if err != nil {
			monitoring.Debugf("plunger: pot read: %v", err)
			return Reading{}, false
		}
		sum += int(v)
	}
	t1 := s.micros.Micros()
	s.scanTotal.Add(uint64(timeutil.ElapsedMicros(t0, t1)))
	s.scans.Add(1)

	avg := (sum + s.cfg.Samples/2) / s.cfg.Samples
	pos := clampNative(s.jitter.Apply(avg))
	return Reading{Pos: orient(pos, s.cfg.Reverse), T: timeutil.MidpointMicros(t0, t1)}, true
}

func (s *Potentiometer) AvgScanTime() uint32 {
	n := s.scans.Load()
	if n == 0 {
		return 0
	}
	return uint32(s.scanTotal.Load() / n)
}
