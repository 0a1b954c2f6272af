package imaging

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

var testProfile = Profile{
	Name:            "test",
	Samples:         64,
	MaxPixelClockHz: 1_000_000,
	integrate:       integrateTSL14xx,
}

type rig struct {
	clock  *timeutil.MockClock
	xfer   *sim.Transfer
	pclk   *sim.ClockGen
	pins   *sim.PinLog
	engine *Engine
	frame  int
}

// newRig builds an engine whose transfers take 64µs and stamp each frame
// with a sequence number in every byte.
func newRig(t *testing.T, minIntegration time.Duration, fill func(dst []byte)) *rig {
	t.Helper()
	r := &rig{
		clock: timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		pclk:  &sim.ClockGen{},
		pins:  &sim.PinLog{},
	}
	if fill == nil {
		fill = func(dst []byte) {
			r.frame++
			for i := range dst {
				dst[i] = byte(r.frame)
			}
		}
	}
	r.xfer = sim.NewTransfer(r.clock, 1_000_000, fill)
	lines := Lines{Start: r.pins.Pin("SI"), Shift: r.pins.Pin("CLK")}
	r.engine = NewEngine(Config{Profile: testProfile, MinIntegration: minIntegration},
		r.xfer, r.pclk, lines, timeutil.NewMicroClock(r.clock))
	return r
}

func (r *rig) scan() { r.clock.Advance(64 * time.Microsecond) }

func TestEngine_FirstFrameHandedOver(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	assert.False(t, r.engine.Ready())
	assert.True(t, r.pclk.Running())

	r.scan()
	require.True(t, r.engine.Ready())
	pix, ts, ok := r.engine.Pix()
	require.True(t, ok)
	assert.Equal(t, byte(1), pix[0])
	assert.Equal(t, uint32(0), ts)
	assert.Equal(t, uint32(2), r.xfer.Started())
}

func TestEngine_TimestampIsIntegrationMidpoint(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	r.scan()
	_, _, ok := r.engine.Pix()
	require.True(t, ok)
	r.engine.ReleasePix()

	r.scan()
	pix, ts, ok := r.engine.Pix()
	require.True(t, ok)
	assert.Equal(t, byte(2), pix[0])
	// Frame 2 integrated from 0µs to 64µs.
	assert.Equal(t, uint32(32), ts)
}

func TestEngine_HeldBufferIsNeverOverwritten(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	r.scan()

	pix, _, ok := r.engine.Pix()
	require.True(t, ok)
	held := append([]byte(nil), pix...)

	for i := 0; i < 10; i++ {
		r.scan()
	}
	if diff := cmp.Diff(held, pix); diff != "" {
		t.Fatalf("held buffer changed (-want +got):\n%s", diff)
	}
	st := r.engine.Stats()
	assert.Equal(t, uint32(11), st.Frames)
	assert.Equal(t, uint32(1), st.Handoffs)
	assert.Equal(t, uint32(10), st.Overruns)

	r.engine.ReleasePix()
	assert.False(t, r.engine.Ready())
	r.scan()
	pix, _, ok = r.engine.Pix()
	require.True(t, ok)
	assert.Equal(t, byte(12), pix[0], "newest frame handed over after release")
}

func TestEngine_OwnershipUnderRandomSchedules(t *testing.T) {
	var held *byte
	var r *rig
	r = newRig(t, 0, func(dst []byte) {
		if held != nil && &dst[0] == held {
			t.Fatalf("transfer wrote into the consumer's buffer")
		}
		r.frame++
		for i := range dst {
			dst[i] = byte(r.frame)
		}
	})
	require.NoError(t, r.engine.Start())

	rng := rand.New(rand.NewSource(7))
	last := byte(0)
	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0:
			r.clock.Advance(time.Duration(rng.Intn(100)) * time.Microsecond)
		case 1:
			if pix, _, ok := r.engine.Pix(); ok {
				held = &pix[0]
				// Frames arrive in order and each is a whole frame.
				require.GreaterOrEqual(t, pix[0], last)
				for _, v := range pix {
					require.Equal(t, pix[0], v)
				}
				last = pix[0]
			}
		case 2:
			if held != nil {
				held = nil
				r.engine.ReleasePix()
			}
		}
		if r.frame > 250 {
			break
		}
	}
	assert.Greater(t, r.engine.Stats().Handoffs, uint32(10))
}

func TestEngine_MinIntegrationDelaysNextCapture(t *testing.T) {
	r := newRig(t, 200*time.Microsecond, nil)
	require.NoError(t, r.engine.Start())

	r.scan()
	assert.Equal(t, uint32(1), r.xfer.Started())
	assert.False(t, r.pclk.Running())
	assert.Equal(t, 1, r.clock.Pending())

	r.clock.Advance(135 * time.Microsecond)
	assert.Equal(t, uint32(1), r.xfer.Started())
	r.clock.Advance(time.Microsecond)
	assert.Equal(t, uint32(2), r.xfer.Started())
	assert.True(t, r.engine.Ready())
}

func TestEngine_WaitPixTimesOutWhenSensorSilent(t *testing.T) {
	r := newRig(t, 0, nil)
	r.xfer.Disconnect(true)
	require.NoError(t, r.engine.Start())
	r.scan()

	_, _, err := r.engine.WaitPix(time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
	sleeps := r.clock.Sleeps()
	assert.Len(t, sleeps, int(time.Millisecond/pollInterval))
	assert.Equal(t, uint32(0), r.engine.AvgScanTime())
}

func TestEngine_WaitPixReturnsReadyFrame(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	r.scan()
	pix, _, err := r.engine.WaitPix(time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, pix, 64)
	assert.Empty(t, r.clock.Sleeps())
}

func TestEngine_IntegrationPulseSequence(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	assert.Equal(t, []string{"SI=1", "CLK=1", "SI=0", "CLK=0"}, r.pins.Events())

	var log sim.PinLog
	TCD1103.Integrate(Lines{Start: log.Pin("ICG"), Shift: log.Pin("SH")})
	assert.Equal(t, []string{"ICG=0", "SH=1", "SH=0", "ICG=1"}, log.Events())
}

func TestEngine_SingleShotCapture(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.StartCapture())
	assert.ErrorIs(t, r.engine.StartCapture(), hw.ErrBusy)

	r.scan()
	pix, _, ok := r.engine.Pix()
	require.True(t, ok)
	assert.Equal(t, byte(1), pix[0])
	assert.Equal(t, uint32(1), r.xfer.Started(), "no follow-on capture in single-shot mode")

	require.NoError(t, r.engine.Start())
	assert.ErrorIs(t, r.engine.StartCapture(), ErrRunning)
	assert.ErrorIs(t, r.engine.Start(), ErrRunning)
}

// Transfers complete on timer goroutines here, so single-shot handoffs race
// against the consumer for real. Run with -race.
func TestEngine_SingleShotAgainstRealClock(t *testing.T) {
	clock := timeutil.RealClock{}
	var held atomic.Pointer[byte]
	var frames atomic.Uint32
	xfer := sim.NewTransfer(clock, 10_000_000, func(dst []byte) {
		if held.Load() == &dst[0] {
			t.Errorf("transfer wrote into the consumer's buffer")
		}
		n := byte(frames.Add(1))
		for i := range dst {
			dst[i] = n
		}
	})
	e := NewEngine(Config{Profile: testProfile, PixelClockHz: 10_000_000},
		xfer, &sim.ClockGen{}, Lines{}, timeutil.NewMicroClock(clock))

	deadline := time.Now().Add(200 * time.Millisecond)
	handed := 0
	for time.Now().Before(deadline) {
		_ = e.StartCapture()
		pix, _, ok := e.Pix()
		if !ok {
			continue
		}
		held.Store(&pix[0])
		for _, v := range pix {
			if v != pix[0] {
				t.Fatalf("torn frame: %d then %d", pix[0], v)
			}
		}
		handed++
		held.Store(nil)
		e.ReleasePix()
	}
	// Let the last transfer finish before the test returns.
	require.Eventually(t, func() bool { return !xfer.Busy() }, time.Second, time.Millisecond)
	assert.Greater(t, handed, 0)
	assert.GreaterOrEqual(t, e.Stats().Handoffs, uint32(handed))
}

func TestEngine_StopEndsChain(t *testing.T) {
	r := newRig(t, 0, nil)
	require.NoError(t, r.engine.Start())
	r.scan()
	r.engine.Stop()
	r.scan()
	r.scan()
	assert.Equal(t, uint32(2), r.xfer.Started())
	assert.False(t, r.engine.Running())
}

func TestEngine_StatsAndPixelClock(t *testing.T) {
	r := newRig(t, 0, nil)
	assert.Equal(t, 1_000_000, r.engine.PixelClockHz())
	require.NoError(t, r.engine.Start())
	for i := 0; i < 4; i++ {
		r.scan()
	}
	st := r.engine.Stats()
	assert.Equal(t, uint32(4), st.Frames)
	assert.Equal(t, uint32(64), st.Avg)
	assert.Equal(t, uint32(64), st.Min)
	assert.Equal(t, uint32(64), st.Max)
	assert.Equal(t, uint32(64), st.Last)
	assert.Equal(t, 1_000_000, r.pclk.Hz())
	assert.Equal(t, uint32(5), r.pclk.Starts())
}

func TestEngine_ClockFaultReported(t *testing.T) {
	r := newRig(t, 0, nil)
	r.pclk.FailStart.Store(true)
	assert.Error(t, r.engine.Start())
	assert.False(t, r.engine.Running())
	assert.False(t, r.xfer.Busy())
}

func TestProfiles(t *testing.T) {
	p, err := LookupProfile("tcd1103")
	require.NoError(t, err)
	assert.Equal(t, 1500, p.Pixels())
	frame := make([]byte, p.Samples)
	assert.Len(t, p.Image(frame), 1500)

	p, err = LookupProfile("tsl1410r")
	require.NoError(t, err)
	assert.Equal(t, 1280, p.Pixels())

	_, err = LookupProfile("ov7670")
	assert.Error(t, err)
}
