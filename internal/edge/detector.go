// Package edge locates the shadow edge cast by the plunger tip on a linear
// image sensor.
package edge

import (
	"github.com/banshee-data/plunger.sense/internal/filter"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
)

// Orientation records which end of the sensor is lit.
type Orientation int8

const (
	Unknown Orientation = 0
	Forward Orientation = 1  // bright end at pixel 0
	Reverse Orientation = -1 // bright end at the last pixel
)

func (o Orientation) String() string {
	switch o {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Mode says how a position was obtained.
type Mode uint8

const (
	ModeScan   Mode = iota // a shadow edge was found
	ModeLit                // no edge, frame brighter than the usual midpoint
	ModeShadow             // no edge, frame darker than the usual midpoint
)

// Config holds the detector tuning.
type Config struct {
	// EndSamples is how many pixels at each end are averaged to estimate
	// the bright and dark levels.
	EndSamples int
	// ContrastMargin is the minimum brightness difference between the ends
	// for the orientation to be decided from the current frame.
	ContrastMargin int
	// BoundaryMargin is how close to the far end a scan pointer may get
	// before the scan gives up.
	BoundaryMargin int
	// MinPixels is the smallest frame worth scanning.
	MinPixels int
	// MidpointHistory is the number of recent midpoint brightness levels
	// kept for classifying low-contrast frames.
	MidpointHistory int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		EndSamples:      5,
		ContrastMargin:  10,
		BoundaryMargin:  1,
		MinPixels:       10,
		MidpointHistory: 10,
	}
}

// Result is one detected position.
type Result struct {
	// Pos is the edge index counted from the bright end: the number of lit
	// pixels. It ranges over [0, n-1].
	Pos  int
	Dir  Orientation
	Mode Mode
}

// Detector finds the edge in successive frames. It carries the orientation
// and midpoint history between frames and is not safe for concurrent use.
type Detector struct {
	cfg  Config
	dir  Orientation
	mids *filter.Ring
}

// NewDetector returns a detector with no orientation established.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.EndSamples <= 0 {
		cfg.EndSamples = def.EndSamples
	}
	if cfg.MinPixels < 2*cfg.EndSamples {
		cfg.MinPixels = 2 * cfg.EndSamples
	}
	if cfg.BoundaryMargin < 0 {
		cfg.BoundaryMargin = 0
	}
	if cfg.MidpointHistory <= 0 {
		cfg.MidpointHistory = def.MidpointHistory
	}
	return &Detector{cfg: cfg, mids: filter.NewRing(cfg.MidpointHistory)}
}

// Orientation returns the last established orientation.
func (d *Detector) Orientation() Orientation {
	return d.dir
}

// Reset forgets the orientation and midpoint history.
func (d *Detector) Reset() {
	d.dir = Unknown
	d.mids.Reset()
}

// Detect scans one frame. ok is false when the frame yields no position.
func (d *Detector) Detect(pix []byte) (res Result, ok bool) {
	n := len(pix)
	if n < d.cfg.MinPixels {
		return Result{}, false
	}

	a := mean(pix[:d.cfg.EndSamples])
	b := mean(pix[n-d.cfg.EndSamples:])

	switch {
	case a > b+d.cfg.ContrastMargin:
		d.dir = Forward
	case b > a+d.cfg.ContrastMargin:
		d.dir = Reverse
	default:
		return d.lowContrast(n, (a+b)/2)
	}

	bright, dark := a, b
	at := func(i int) int { return int(pix[i]) }
	if d.dir == Reverse {
		bright, dark = b, a
		at = func(i int) int { return int(pix[n-1-i]) }
	}

	mid := (bright + dark) / 2
	delta := (bright - dark) / 6
	hi, lo := mid+delta, mid-delta

	pos, found := scan(at, n, hi, lo, d.cfg.BoundaryMargin)
	if !found {
		monitoring.Debugf("edge: no crossing (bright=%d dark=%d dir=%v)", bright, dark, d.dir)
		return Result{}, false
	}
	d.mids.Push(mid)
	return Result{Pos: pos, Dir: d.dir, Mode: ModeScan}, true
}

// scan runs the two-sided convergent search in bright-end-first coordinates.
// One pointer walks from the bright end looking for a pixel below lo, the
// other from the dark end looking for a pixel above hi. When each has found
// a crossing and the pointers have passed each other, the bright-side pointer
// is the edge. When the pointers have not passed, the side whose crossing
// pixel is isolated (its next pixel inward is back on the far side of the
// threshold) steps past it and resumes; the other side keeps its crossing.
func scan(at func(int) int, n, hi, lo, margin int) (int, bool) {
	bi, di := 1, n-2
	for {
		for bi < n-margin && at(bi) >= lo {
			bi++
		}
		if bi >= n-margin {
			return 0, false
		}
		for di >= margin && at(di) <= hi {
			di--
		}
		if di < margin {
			return 0, false
		}
		if bi > di {
			return bi, true
		}
		brightNoise := bi+1 < n && at(bi+1) >= lo
		darkNoise := di > 0 && at(di-1) <= hi
		if brightNoise == darkNoise {
			// No way to tell which side is wrong.
			bi++
			di--
			continue
		}
		if brightNoise {
			bi++
		} else {
			di--
		}
	}
}

// lowContrast classifies a frame whose ends are about equally bright. With a
// known orientation and midpoint history the frame is either fully lit (the
// plunger is fully retracted) or fully shadowed (fully forward).
func (d *Detector) lowContrast(n, level int) (Result, bool) {
	if d.dir == Unknown {
		return Result{}, false
	}
	avgMid, ok := d.mids.Mean()
	if !ok {
		return Result{}, false
	}
	if level > avgMid {
		return Result{Pos: n - 1, Dir: d.dir, Mode: ModeLit}, true
	}
	return Result{Pos: 0, Dir: d.dir, Mode: ModeShadow}, true
}

func mean(p []byte) int {
	sum := 0
	for _, v := range p {
		sum += int(v)
	}
	return sum / len(p)
}
