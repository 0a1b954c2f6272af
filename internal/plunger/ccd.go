package plunger

import (
	"sync"
	"time"

	"github.com/banshee-data/plunger.sense/internal/edge"
	"github.com/banshee-data/plunger.sense/internal/filter"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
)

// CCDConfig tunes an image sensor plunger.
type CCDConfig struct {
	Edge            edge.Config
	JitterHistory   int
	JitterTolerance int
	ReadTimeout     time.Duration
	Reverse         bool
}

// CCD reads the plunger position from the shadow the plunger tip casts on a
// linear image sensor.
type CCD struct {
	engine   *imaging.Engine
	profile  imaging.Profile
	detector *edge.Detector
	jitter   *filter.JitterFilter
	cfg      CCDConfig

	// image is the working copy the detector scans, with dummies stripped
	// and inverted parts flipped.
	image []byte

	mu     sync.Mutex
	last   []byte
	lastT  uint32
	hasImg bool
	dir    edge.Orientation
}

// NewCCD returns a sensor reading frames from engine.
func NewCCD(engine *imaging.Engine, cfg CCDConfig) *CCD {
	p := engine.Profile()
	return &CCD{
		engine:   engine,
		profile:  p,
		detector: edge.NewDetector(cfg.Edge),
		jitter:   filter.NewJitterFilter(cfg.JitterHistory, cfg.JitterTolerance),
		cfg:      cfg,
		image:    make([]byte, p.Pixels()),
		last:     make([]byte, p.Pixels()),
	}
}

// Init starts continuous capture.
func (s *CCD) Init() error {
	monitoring.Logf("plunger: %s image sensor, %d pixels at %d Hz", s.profile.Name, s.profile.Pixels(), s.engine.PixelClockHz())
	return s.engine.Start()
}

func (s *CCD) Read() (Reading, bool) {
	pix, t, err := s.engine.WaitPix(s.cfg.ReadTimeout)
	if err != nil {
		monitoring.Debugf("plunger: %s: %v", s.profile.Name, err)
		return Reading{}, false
	}
	copy(s.image, s.profile.Image(pix))
	s.engine.ReleasePix()

	if s.profile.Inverted {
		for i, v := range s.image {
			s.image[i] = 255 - v
		}
	}

	res, ok := s.detector.Detect(s.image)

	s.mu.Lock()
	copy(s.last, s.image)
	s.lastT = t
	s.hasImg = true
	s.dir = s.detector.Orientation()
	s.mu.Unlock()

	if !ok {
		monitoring.Debugf("plunger: %s: no edge at t=%d", s.profile.Name, t)
		return Reading{}, false
	}
	p := s.jitter.Apply(res.Pos)
	pos := scaleToNative(p, len(s.image)-1)
	return Reading{Pos: orient(pos, s.cfg.Reverse), T: t}, true
}

func (s *CCD) AvgScanTime() uint32 {
	return s.engine.AvgScanTime()
}

// Close stops capture.
func (s *CCD) Close() error {
	s.engine.Stop()
	return nil
}

// LastFrame returns the most recent image as the detector saw it.
func (s *CCD) LastFrame(dst []byte) ([]byte, uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasImg {
		return dst[:0], 0, false
	}
	dst = append(dst[:0], s.last...)
	return dst, s.lastT, true
}

// Direction returns the orientation the detector has established.
func (s *CCD) Direction() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int8(s.dir)
}

// Engine exposes the acquisition engine for diagnostics.
func (s *CCD) Engine() *imaging.Engine {
	return s.engine
}
