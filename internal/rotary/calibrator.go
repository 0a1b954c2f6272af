// Package rotary converts absolute rotary encoder angles into linear plunger
// positions for a linkage in which the encoder's arm is pinned to the plunger
// rod through a sliding joint.
//
// Geometry: the encoder sits a fixed perpendicular distance L above the rod.
// The arm is vertical (perpendicular to the rod) somewhere between the park
// position and full retraction. With x the rod position measured from that
// vertical, x = L*tan(phi) where phi is the arm angle from the vertical. The
// encoder only reports the angle swept from park, so the angle between park
// and the vertical (alpha) is solved from the total swept angle theta and the
// known ratio C of the retracted-side distance to the forward-side distance:
//
//	tan(theta - alpha) = C * tan(alpha)
//
// whose closed form is alpha = atan((sqrt(4T²C + C² + 2C + 1) - C - 1) / (2TC))
// with T = tan(theta).
package rotary

import (
	"math"

	"github.com/banshee-data/plunger.sense/internal/monitoring"
)

// NativeMax is the top of the normalized position scale.
const NativeMax = 65535

// Swept angles outside this range cannot come from a working linkage; the
// default angle is used instead.
const (
	minSweep = 5 * math.Pi / 180
	maxSweep = 85 * math.Pi / 180
)

// Config holds the encoder and linkage parameters.
type Config struct {
	// ScaleMax is the number of encoder counts per revolution.
	ScaleMax int
	// ExcursionDivisor sets how far forward of park the plunger may travel,
	// as a fraction of a revolution: ScaleMax/ExcursionDivisor.
	ExcursionDivisor int
	// LinkageRatio is C, the retracted-side to forward-side distance ratio.
	LinkageRatio float64
	// DefaultMaxAngle is the swept angle in radians assumed before calibration.
	DefaultMaxAngle float64
	// LinearZero is the native position reported at park.
	LinearZero int
}

// DefaultConfig returns the parameters for a 12-bit encoder.
func DefaultConfig() Config {
	return Config{
		ScaleMax:         4096,
		ExcursionDivisor: 12,
		LinkageRatio:     2.0,
		DefaultMaxAngle:  35 * math.Pi / 180,
		LinearZero:       NativeMax / 6,
	}
}

// Calibrator holds the calibration state for one encoder. It is not safe for
// concurrent use; the owning sensor serializes access.
type Calibrator struct {
	cfg Config

	park      int // raw angle at park
	maxBiased int // swept angle from park to full retraction, in counts

	alpha   float64 // radians from park to the vertical
	scale   float64 // native units per unit of tan(phi)
	offset  float64 // native position of the vertical
	radians float64 // radians per count

	minSeen, maxSeen int
	calibrating      bool
}

// New returns a calibrator seeded with the default swept angle and a park
// angle of zero. Call Restore before taking readings.
func New(cfg Config) *Calibrator {
	if cfg.ScaleMax <= 0 {
		cfg.ScaleMax = DefaultConfig().ScaleMax
	}
	if cfg.ExcursionDivisor <= 0 {
		cfg.ExcursionDivisor = DefaultConfig().ExcursionDivisor
	}
	if cfg.LinkageRatio <= 0 {
		cfg.LinkageRatio = DefaultConfig().LinkageRatio
	}
	if cfg.DefaultMaxAngle <= 0 {
		cfg.DefaultMaxAngle = DefaultConfig().DefaultMaxAngle
	}
	c := &Calibrator{
		cfg:     cfg,
		radians: 2 * math.Pi / float64(cfg.ScaleMax),
	}
	c.maxBiased = c.defaultMaxBiased()
	c.calcAlpha()
	return c
}

// MaxForwardExcursion is the largest forward-of-park travel, in counts,
// that Unwrap will treat as negative rather than as a wrap.
func (c *Calibrator) MaxForwardExcursion() int {
	return c.cfg.ScaleMax / c.cfg.ExcursionDivisor
}

func (c *Calibrator) defaultMaxBiased() int {
	return int(math.Round(c.cfg.DefaultMaxAngle / c.radians))
}

// Restore loads saved calibration. An uncalibrated record seeds the park
// angle from live (the plunger is assumed to be resting) and the swept angle
// from the configured default.
func (c *Calibrator) Restore(calibrated bool, raw0, raw1 uint16, live uint16) {
	if calibrated {
		c.park = int(raw0) % c.cfg.ScaleMax
		c.maxBiased = int(raw1)
	} else {
		c.park = int(live) % c.cfg.ScaleMax
		c.maxBiased = c.defaultMaxBiased()
	}
	c.calcAlpha()
}

// Begin starts a calibration pass. The plunger rests at park when calibration
// starts, so a valid live reading replaces the park angle.
func (c *Calibrator) Begin(live uint16, liveOK bool) {
	if liveOK {
		c.park = int(live) % c.cfg.ScaleMax
	}
	c.minSeen, c.maxSeen = 0, 0
	c.calibrating = true
}

// End commits the largest swept angle observed since Begin and returns the
// values to persist: the raw park angle and the swept angle in counts.
func (c *Calibrator) End() (raw0, raw1 uint16) {
	if c.maxSeen > 0 {
		c.maxBiased = c.maxSeen
	} else {
		monitoring.Logf("rotary: calibration saw no retraction, keeping swept angle %d", c.maxBiased)
	}
	c.calibrating = false
	c.calcAlpha()
	return uint16(c.park), uint16(c.maxBiased)
}

// Calibrating reports whether a calibration pass is running.
func (c *Calibrator) Calibrating() bool {
	return c.calibrating
}

// Unwrap converts a raw encoder angle to an angle relative to park, resolving
// the wrap at the encoder's zero point, and updates the observed range.
func (c *Calibrator) Unwrap(raw uint16) int {
	exc := c.MaxForwardExcursion()
	b := int(raw) - c.park
	if b < -exc {
		b += c.cfg.ScaleMax
	} else if b >= c.cfg.ScaleMax-exc {
		b -= c.cfg.ScaleMax
	}

	if b < c.minSeen {
		c.minSeen = b
	}
	if b > c.maxSeen {
		c.maxSeen = b
	}
	return b
}

// Observed returns the smallest and largest biased angles seen since the last
// Begin (or since construction).
func (c *Calibrator) Observed() (lo, hi int) {
	return c.minSeen, c.maxSeen
}

// BiasedToLinear converts an angle relative to park into a native linear
// position. Park maps to LinearZero and the calibrated swept angle maps to
// NativeMax. The result is not clamped.
func (c *Calibrator) BiasedToLinear(biased int) int {
	phi := float64(biased)*c.radians - c.alpha
	const limit = math.Pi/2 - 0.01
	phi = math.Max(-limit, math.Min(limit, phi))
	return int(math.Round(c.offset + c.scale*math.Tan(phi)))
}

// Alpha returns the park-to-vertical angle in radians.
func (c *Calibrator) Alpha() float64 {
	return c.alpha
}

// Park returns the raw park angle.
func (c *Calibrator) Park() int {
	return c.park
}

// MaxBiased returns the swept angle in counts.
func (c *Calibrator) MaxBiased() int {
	return c.maxBiased
}

// Zero returns the native position of park.
func (c *Calibrator) Zero() int {
	return c.cfg.LinearZero
}

// SetZero moves the native position reported at park. Values outside
// (0, NativeMax) are ignored.
func (c *Calibrator) SetZero(z int) {
	if z <= 0 || z >= NativeMax || z == c.cfg.LinearZero {
		return
	}
	c.cfg.LinearZero = z
	c.calcAlpha()
}

func (c *Calibrator) calcAlpha() {
	theta := float64(c.maxBiased) * c.radians
	if theta < minSweep || theta > maxSweep {
		monitoring.Logf("rotary: swept angle %.1f° out of range, using default %.1f°",
			theta*180/math.Pi, c.cfg.DefaultMaxAngle*180/math.Pi)
		theta = c.cfg.DefaultMaxAngle
	}
	c.alpha = Alpha(theta, c.cfg.LinkageRatio)

	// Park sits at x = -tan(alpha) and full retraction at C*tan(alpha).
	ta := math.Tan(c.alpha)
	z := float64(c.cfg.LinearZero)
	c.scale = (NativeMax - z) / ((c.cfg.LinkageRatio + 1) * ta)
	c.offset = z + c.scale*ta
}

// Alpha solves tan(theta-alpha) = C*tan(alpha) for alpha, given the swept
// angle theta in radians and the linkage ratio C.
func Alpha(theta, C float64) float64 {
	T := math.Tan(theta)
	return math.Atan((math.Sqrt(4*T*T*C+C*C+2*C+1) - C - 1) / (2 * T * C))
}
