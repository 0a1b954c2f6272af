package plunger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plunger.sense/internal/filter"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/serialport"
	"github.com/banshee-data/plunger.sense/internal/tfluna"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// ToFConfig tunes a time-of-flight plunger.
type ToFConfig struct {
	// MinRangeMM and MaxRangeMM are the distances at full forward and full
	// retraction.
	MinRangeMM  int
	MaxRangeMM  int
	MinStrength int
	// Unit is the output unit to put the device in. Millimetres is sent to
	// the device at Init.
	Unit            tfluna.Unit
	JitterHistory   int
	JitterTolerance int
	ReadTimeout     time.Duration
	Reverse         bool
}

type tofSample struct {
	seq    uint64
	distMM int
	t      uint32
}

// TimeOfFlight reads a TF-Luna style range finder streaming frames over a
// serial port. A background goroutine parses the stream; Read returns the
// newest sample.
type TimeOfFlight struct {
	port   serialport.SerialPorter
	micros *timeutil.MicroClock
	cfg    ToFConfig
	jitter *filter.JitterFilter

	// reader goroutine state
	parser tfluna.Parser
	seq    uint64
	prevT  uint32

	latest   atomic.Pointer[tofSample]
	notify   chan struct{}
	lastSeq  uint64
	rejected atomic.Uint64
	gapTotal atomic.Uint64
	gaps     atomic.Uint64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewTimeOfFlight returns a sensor reading frames from port.
func NewTimeOfFlight(port serialport.SerialPorter, micros *timeutil.MicroClock, cfg ToFConfig) *TimeOfFlight {
	return &TimeOfFlight{
		port:   port,
		micros: micros,
		cfg:    cfg,
		jitter: filter.NewJitterFilter(cfg.JitterHistory, cfg.JitterTolerance),
		parser: tfluna.Parser{Unit: cfg.Unit},
		notify: make(chan struct{}, 1),
	}
}

// Init switches the device to millimetre output when configured and starts
// the reader goroutine.
func (s *TimeOfFlight) Init() error {
	if s.cfg.MaxRangeMM <= s.cfg.MinRangeMM {
		return fmt.Errorf("tof range %d..%d mm is empty", s.cfg.MinRangeMM, s.cfg.MaxRangeMM)
	}
	if s.cfg.Unit == tfluna.Millimetres {
		if _, err := s.port.Write(tfluna.CmdMillimetreOutput); err != nil {
			return fmt.Errorf("failed to set millimetre output: %w", err)
		}
	}
	if tp, ok := s.port.(serialport.TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(100 * time.Millisecond); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.monitor(ctx)
	return nil
}

func (s *TimeOfFlight) monitor(ctx context.Context) {
	defer close(s.done)
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, serialport.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			monitoring.Logf("plunger: tof read error: %v", err)
			s.micros.Clock().Sleep(10 * time.Millisecond)
			continue
		}
		s.parser.Write(buf[:n], s.handle)
	}
}

// handle publishes one decoded frame. It runs on the reader goroutine.
func (s *TimeOfFlight) handle(f tfluna.Frame) {
	if !f.Reliable(s.cfg.MinStrength) {
		s.rejected.Add(1)
		return
	}
	t := s.micros.Micros()
	if s.seq > 0 {
		s.gapTotal.Add(uint64(timeutil.ElapsedMicros(s.prevT, t)))
		s.gaps.Add(1)
	}
	s.prevT = t
	s.seq++
	s.latest.Store(&tofSample{seq: s.seq, distMM: int(f.DistanceMM), t: t})
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *TimeOfFlight) Read() (Reading, bool) {
	var timer timeutil.Timer
	for {
		if smp := s.latest.Load(); smp != nil && smp.seq != s.lastSeq {
			s.lastSeq = smp.seq
			d := s.jitter.Apply(smp.distMM)
			pos := scaleToNative(d-s.cfg.MinRangeMM, s.cfg.MaxRangeMM-s.cfg.MinRangeMM)
			return Reading{Pos: orient(pos, s.cfg.Reverse), T: smp.t}, true
		}
		if timer == nil {
			timer = s.micros.Clock().NewTimer(s.cfg.ReadTimeout)
			defer timer.Stop()
		}
		select {
		case <-s.notify:
		case <-timer.C():
			return Reading{}, false
		}
	}
}

// AvgScanTime returns the mean interval between reliable frames.
func (s *TimeOfFlight) AvgScanTime() uint32 {
	n := s.gaps.Load()
	if n == 0 {
		return 0
	}
	return uint32(s.gapTotal.Load() / n)
}

// Rejected returns the number of frames dropped for signal strength.
func (s *TimeOfFlight) Rejected() uint64 {
	return s.rejected.Load()
}

// Close stops the reader and closes the port.
func (s *TimeOfFlight) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		err = s.port.Close()
		if s.done != nil {
			<-s.done
		}
	})
	return err
}
