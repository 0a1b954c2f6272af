package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

func TestSnapshot_ImageSensorPixels(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	model := sim.NewPlungerModel(clock, 0)
	model.SetPosition(0.5)
	shadow := sim.NewShadow(model)
	shadow.Noise = 0
	xfer := sim.NewTransfer(clock, 1_000_000, shadow.Fill)

	cfg := config.EmptyPlungerConfig()
	kind := config.SensorTSL1410R
	cfg.SensorType = &kind
	s, err := plunger.New(cfg, plunger.Resources{
		Micros:     timeutil.NewMicroClock(clock),
		Transfer:   xfer,
		PixelClock: &sim.ClockGen{},
	})
	require.NoError(t, err)
	require.NoError(t, s.Init())
	defer plunger.Close(s)

	tr := NewTracker(kind, s, 10)
	clock.Advance(xfer.Duration(imaging.TSL1410R.Samples))
	_, ok := tr.Poll()
	require.True(t, ok)

	snap, err := tr.Snapshot(SnapshotOptions{Pixels: true, LowRes: 8})
	require.NoError(t, err)
	assert.Equal(t, int8(1), snap.Direction)
	assert.Len(t, snap.Pixels, 1280/8)
	assert.Equal(t, 8, snap.LowRes)
	assert.Equal(t, byte(200), snap.Pixels[0])
	assert.Equal(t, byte(24), snap.Pixels[len(snap.Pixels)-1])
	require.NotNil(t, snap.Brightness)
	assert.InDelta(t, 112, snap.Brightness.Mean, 1)
	require.NotNil(t, snap.Engine)
	assert.Equal(t, uint32(1), snap.Engine.Handoffs)

	_, err = tr.Snapshot(SnapshotOptions{Pixels: true, LowRes: 5})
	assert.ErrorIs(t, err, ErrLowRes)
}
