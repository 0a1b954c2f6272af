package plunger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/rotary"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

type rotaryRig struct {
	clock  *timeutil.MockClock
	model  *sim.PlungerModel
	angle  *sim.Angle
	sensor *Rotary
}

func newRotaryRig(t *testing.T, parkRaw int, sweepDeg float64) *rotaryRig {
	t.Helper()
	clock := timeutil.NewMockClock(testEpoch)
	model := sim.NewPlungerModel(clock, 0)
	model.SetPosition(sim.Park)
	angle := &sim.Angle{
		Model:        model,
		ScaleMax:     4096,
		ParkRaw:      parkRaw,
		Sweep:        sweepDeg * math.Pi / 180,
		LinkageRatio: 2,
	}
	s := NewRotary(angle, timeutil.NewMicroClock(clock), RotaryConfig{Config: rotary.DefaultConfig()})
	return &rotaryRig{clock: clock, model: model, angle: angle, sensor: s}
}

func (r *rotaryRig) read(t *testing.T, pos float64) Reading {
	t.Helper()
	r.model.SetPosition(pos)
	got, ok := r.sensor.Read()
	require.True(t, ok)
	return got
}

func TestRotary_ParkReadsLinearZero(t *testing.T) {
	r := newRotaryRig(t, 4000, 35)
	require.NoError(t, r.sensor.Init())

	got := r.read(t, sim.Park)
	assert.InDelta(t, NativeMax/6, int(got.Pos), 2)

	full := r.read(t, 1)
	assert.InDelta(t, NativeMax, int(full.Pos), 300)
}

func TestRotary_CalibrationLearnsSweep(t *testing.T) {
	r := newRotaryRig(t, 4000, 45)
	require.NoError(t, r.sensor.Init())

	// Uncalibrated, the 45° linkage saturates well before full retraction.
	assert.Equal(t, uint16(NativeMax), r.read(t, 0.9).Pos)

	r.model.SetPosition(sim.Park)
	BeginCalibration(r.sensor)
	assert.True(t, r.sensor.Calibrating())
	r.read(t, sim.Park)
	r.read(t, 1)
	r.read(t, 0.6)
	r.read(t, sim.Park)

	rec := DefaultCalibration()
	EndCalibration(r.sensor, &rec)
	assert.False(t, r.sensor.Calibrating())

	assert.True(t, rec.Calibrated)
	assert.Equal(t, uint16(4000), rec.Raw0)
	assert.InDelta(t, 45.0/360*4096, int(rec.Raw1), 1)
	assert.Equal(t, uint16(NativeMax/6), rec.Zero)

	assert.InDelta(t, NativeMax, int(r.read(t, 1).Pos), 200)
	assert.InDelta(t, NativeMax/6, int(r.read(t, sim.Park).Pos), 2)
	mid := r.read(t, (1+sim.Park)/2)
	assert.InDelta(t, (NativeMax+NativeMax/6)/2, int(mid.Pos), 300)
}

func TestRotary_RestoreUsesSavedCalibration(t *testing.T) {
	r := newRotaryRig(t, 50, 45)
	rec := CalibrationRecord{Calibrated: true, Raw0: 50, Raw1: 512}
	RestoreCalibration(r.sensor, &rec)
	require.NoError(t, r.sensor.Init())

	assert.InDelta(t, NativeMax, int(r.read(t, 1).Pos), 200)
	// Fully forward sits just ahead of park, below the encoder's zero point.
	assert.InDelta(t, 0, int(r.read(t, 0).Pos), 120)
}

func TestRotary_RestoreHonoursStoredZero(t *testing.T) {
	r := newRotaryRig(t, 50, 45)
	rec := CalibrationRecord{Calibrated: true, Raw0: 50, Raw1: 512, Zero: 9000, Max: NativeMax}
	RestoreCalibration(r.sensor, &rec)
	require.NoError(t, r.sensor.Init())

	assert.InDelta(t, 9000, int(r.read(t, sim.Park).Pos), 20)
	assert.InDelta(t, NativeMax, int(r.read(t, 1).Pos), 200)

	// An uncalibrated record keeps the configured zero.
	r = newRotaryRig(t, 50, 45)
	rec = CalibrationRecord{Zero: 9000}
	RestoreCalibration(r.sensor, &rec)
	require.NoError(t, r.sensor.Init())
	assert.InDelta(t, NativeMax/6, int(r.read(t, sim.Park).Pos), 20)
}

func TestRotary_MeasuresReleaseTime(t *testing.T) {
	r := newRotaryRig(t, 1000, 40)
	require.NoError(t, r.sensor.Init())

	BeginCalibration(r.sensor)
	r.read(t, 1)
	r.clock.Advance(10 * time.Millisecond)
	r.read(t, 0.98)
	r.clock.Advance(20 * time.Millisecond)
	r.read(t, 0.5)
	r.clock.Advance(22 * time.Millisecond)
	r.read(t, sim.Park)

	rec := DefaultCalibration()
	EndCalibration(r.sensor, &rec)
	assert.Equal(t, uint8(42), rec.TRelease)
}

func TestRotary_NoReleaseKeepsPrevious(t *testing.T) {
	r := newRotaryRig(t, 1000, 40)
	require.NoError(t, r.sensor.Init())

	BeginCalibration(r.sensor)
	r.read(t, 1)

	rec := CalibrationRecord{TRelease: 70}
	EndCalibration(r.sensor, &rec)
	assert.Equal(t, uint8(70), rec.TRelease)
}

type fakeAngle struct {
	raw uint16
	err error
}

func (f *fakeAngle) ReadAngle() (uint16, error) { return f.raw, f.err }

func TestRotary_ReverseCountsDown(t *testing.T) {
	src := &fakeAngle{raw: 100}
	s := NewRotary(src, testMicros(), RotaryConfig{Config: rotary.DefaultConfig(), Reverse: true})
	require.NoError(t, s.Init())

	park, ok := s.Read()
	require.True(t, ok)
	assert.InDelta(t, NativeMax/6, int(park.Pos), 2)

	// 35° of retraction counting down from 100 wraps to the top of the scale.
	src.raw = uint16((100 - 398 + 4096) % 4096)
	full, ok := s.Read()
	require.True(t, ok)
	assert.InDelta(t, NativeMax, int(full.Pos), 200)
}

func TestRotary_ReadErrorYieldsNoReading(t *testing.T) {
	src := &fakeAngle{raw: 100}
	s := NewRotary(src, testMicros(), RotaryConfig{Config: rotary.DefaultConfig()})
	require.NoError(t, s.Init())

	src.err = sim.ErrFault
	_, ok := s.Read()
	assert.False(t, ok)
}
