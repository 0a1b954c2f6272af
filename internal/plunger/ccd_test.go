package plunger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

type ccdRig struct {
	clock  *timeutil.MockClock
	model  *sim.PlungerModel
	shadow *sim.Shadow
	xfer   *sim.Transfer
	sensor *CCD
	scan   time.Duration
}

func newCCDRig(t *testing.T, kind string, reverse bool) *ccdRig {
	t.Helper()
	profile, err := imaging.LookupProfile(kind)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(testEpoch)
	r := &ccdRig{clock: clock, model: sim.NewPlungerModel(clock, 0)}
	r.shadow = sim.NewShadow(r.model)
	r.shadow.LeadingDummies = profile.LeadingDummies
	r.shadow.TrailingDummies = profile.TrailingDummies
	r.shadow.Inverted = profile.Inverted
	r.xfer = sim.NewTransfer(clock, 1_000_000, r.shadow.Fill)
	r.scan = r.xfer.Duration(profile.Samples)

	cfg := config.EmptyPlungerConfig()
	cfg.SensorType = &kind
	cfg.ReverseOrientation = &reverse
	s, err := New(cfg, Resources{
		Micros:     timeutil.NewMicroClock(clock),
		Transfer:   r.xfer,
		PixelClock: &sim.ClockGen{},
	})
	require.NoError(t, err)
	r.sensor = s.(*CCD)
	require.NoError(t, r.sensor.Init())
	t.Cleanup(func() { _ = Close(r.sensor) })
	return r
}

func (r *ccdRig) read(t *testing.T) Reading {
	t.Helper()
	r.clock.Advance(r.scan)
	got, ok := r.sensor.Read()
	require.True(t, ok, "expected a reading")
	return got
}

func TestCCD_ReadsShadowPosition(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, false)
	r.model.SetPosition(0.5)

	first := r.read(t)
	assert.InDelta(t, NativeMax/2, int(first.Pos), 150)
	assert.Equal(t, uint32(0), first.T)

	// The second frame integrated during the first transfer.
	second := r.read(t)
	assert.Equal(t, uint32(r.scan.Microseconds()/2), second.T)
	assert.Equal(t, uint32(r.scan.Microseconds()/2), Elapsed(first, second))

	assert.Equal(t, int8(1), r.sensor.Direction())
	assert.NotZero(t, r.sensor.AvgScanTime())
}

func TestCCD_TracksMovement(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, false)

	r.model.SetPosition(0.2)
	low := r.read(t)
	r.model.SetPosition(0.9)
	high := r.read(t)

	assert.InDelta(t, 0.2*NativeMax, float64(low.Pos), 150)
	assert.InDelta(t, 0.9*NativeMax, float64(high.Pos), 150)
}

func TestCCD_StationaryPlungerIsSteady(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1412S, false)
	r.shadow.Noise = 20
	r.model.SetPosition(0.4)

	first := r.read(t)
	for i := 0; i < 20; i++ {
		got := r.read(t)
		assert.Equal(t, first.Pos, got.Pos, "frame %d", i)
	}
}

func TestCCD_ReverseOrientationFlipsScale(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, true)
	r.model.SetPosition(0.25)

	got := r.read(t)
	assert.InDelta(t, 0.75*NativeMax, float64(got.Pos), 150)
}

func TestCCD_ShadowFromEitherEnd(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, false)
	r.shadow.Reverse = true
	r.model.SetPosition(0.3)

	got := r.read(t)
	assert.InDelta(t, 0.3*NativeMax, float64(got.Pos), 150)
	assert.Equal(t, int8(-1), r.sensor.Direction())
}

func TestCCD_InvertedSensorWithDummies(t *testing.T) {
	r := newCCDRig(t, config.SensorTCD1103, false)
	r.model.SetPosition(0.6)

	got := r.read(t)
	assert.InDelta(t, 0.6*NativeMax, float64(got.Pos), 150)

	pix, _, ok := r.sensor.LastFrame(nil)
	require.True(t, ok)
	require.Len(t, pix, imaging.TCD1103.Pixels())
	// Lit pixels read bright after inversion.
	assert.Greater(t, int(pix[0]), 150)
	assert.Less(t, int(pix[len(pix)-1]), 60)
}

func TestCCD_TimeoutKeepsNoReading(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, false)
	r.xfer.Disconnect(true)

	_, ok := r.sensor.Read()
	assert.False(t, ok)

	_, _, ok = r.sensor.LastFrame(nil)
	assert.False(t, ok)
}

func TestCCD_FullyForwardUsesHistory(t *testing.T) {
	r := newCCDRig(t, config.SensorTSL1410R, false)

	r.model.SetPosition(0.5)
	r.read(t)

	// Entire sensor in shadow: no contrast between the ends.
	r.model.SetPosition(0)
	got := r.read(t)
	assert.Equal(t, uint16(0), got.Pos)
}
