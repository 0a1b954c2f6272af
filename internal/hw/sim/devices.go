package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plunger.sense/internal/rotary"
	"github.com/banshee-data/plunger.sense/internal/serialport"
	"github.com/banshee-data/plunger.sense/internal/tfluna"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// ErrFault is returned by devices with Fail set.
var ErrFault = errors.New("sim: device fault")

// ADC reads the model as a potentiometer wiper.
type ADC struct {
	Model *PlungerModel
	// Noise is the peak amplitude of uniform noise in 16-bit counts.
	Noise int
	Fail  atomic.Bool

	mu  sync.Mutex
	rng *rand.Rand
}

func (a *ADC) ReadU16() (uint16, error) {
	if a.Fail.Load() {
		return 0, ErrFault
	}
	v := a.Model.Position() * 65535
	if a.Noise > 0 {
		a.mu.Lock()
		if a.rng == nil {
			a.rng = rand.New(rand.NewSource(2))
		}
		v += float64(a.rng.Intn(2*a.Noise+1) - a.Noise)
		a.mu.Unlock()
	}
	return uint16(math.Max(0, math.Min(65535, math.Round(v)))), nil
}

// Angle reports the model through a rotary linkage with the given geometry.
type Angle struct {
	Model *PlungerModel
	// ScaleMax is the encoder resolution in counts per revolution.
	ScaleMax int
	// ParkRaw is the raw encoder reading at park.
	ParkRaw int
	// Sweep is the true swept angle from park to full retraction, radians.
	Sweep float64
	// LinkageRatio is the retracted-side to forward-side distance ratio.
	LinkageRatio float64
	Fail         atomic.Bool
}

func (a *Angle) ReadAngle() (uint16, error) {
	if a.Fail.Load() {
		return 0, ErrFault
	}
	alpha := rotary.Alpha(a.Sweep, a.LinkageRatio)
	xPark := -math.Tan(alpha)
	xMax := a.LinkageRatio * math.Tan(alpha)
	x := xPark + (a.Model.Position()-Park)/(1-Park)*(xMax-xPark)
	biased := math.Atan(x) + alpha

	counts := int(math.Round(biased / (2 * math.Pi) * float64(a.ScaleMax)))
	raw := ((a.ParkRaw+counts)%a.ScaleMax + a.ScaleMax) % a.ScaleMax
	return uint16(raw), nil
}

// ToF streams TF-Luna frames describing the model into a test serial port.
type ToF struct {
	Model *PlungerModel
	Port  *serialport.TestableSerialPort
	// MinMM and MaxMM are the distances at full forward and full retraction.
	MinMM, MaxMM int
	Strength     uint16
	Unit         tfluna.Unit
	// Rate is frames per second.
	Rate int
}

// Run writes frames until ctx is cancelled.
func (s *ToF) Run(ctx context.Context, clock timeutil.Clock) {
	rate := s.Rate
	if rate <= 0 {
		rate = 100
	}
	ticker := clock.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Emit()
		}
	}
}

// Emit writes one frame for the current model position.
func (s *ToF) Emit() {
	p := math.Max(0, s.Model.Position())
	d := float64(s.MinMM) + p*float64(s.MaxMM-s.MinMM)
	b := tfluna.Encode(tfluna.Frame{
		DistanceMM: uint16(math.Round(d)),
		Strength:   s.Strength,
		TempRaw:    (256 + 30) * 8,
	}, s.Unit)
	s.Port.AddReadData(b[:])
}
