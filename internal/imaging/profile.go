package imaging

import (
	"fmt"

	"github.com/banshee-data/plunger.sense/internal/hw"
)

// Lines are the two control outputs every supported sensor needs. On the
// TSL14xx parts Start is SI and Shift is CLK; on the TCD1103 Start is ICG
// (active low) and Shift is SH.
type Lines struct {
	Start hw.Pin
	Shift hw.Pin
}

// Profile describes one linear image sensor part.
type Profile struct {
	Name string
	// Samples is the number of values clocked out per frame, dummies included.
	Samples int
	// LeadingDummies and TrailingDummies are non-image samples at each end.
	LeadingDummies  int
	TrailingDummies int
	// Inverted parts output a lower level for more light.
	Inverted bool
	// MaxPixelClockHz is the fastest supported pixel clock.
	MaxPixelClockHz int

	integrate func(Lines)
}

// Pixels returns the number of image pixels per frame.
func (p Profile) Pixels() int {
	return p.Samples - p.LeadingDummies - p.TrailingDummies
}

// Image returns the image pixels of a raw frame.
func (p Profile) Image(frame []byte) []byte {
	return frame[p.LeadingDummies : len(frame)-p.TrailingDummies]
}

// Integrate issues the pulse sequence that moves the charge collected since
// the previous pulse into the output shift register and restarts integration.
func (p Profile) Integrate(l Lines) {
	if p.integrate != nil {
		p.integrate(l)
	}
}

// TSL14xx: SI high across one CLK rising edge transfers the pixel charges
// and begins the next integration period.
func integrateTSL14xx(l Lines) {
	l.Start.Set(true)
	l.Shift.Set(true)
	l.Start.Set(false)
	l.Shift.Set(false)
}

// TCD1103: ICG low while SH pulses shifts the photodiode charge.
func integrateTCD1103(l Lines) {
	l.Start.Set(false)
	l.Shift.Set(true)
	l.Shift.Set(false)
	l.Start.Set(true)
}

var (
	TSL1410R = Profile{
		Name:            "TSL1410R",
		Samples:         1280,
		MaxPixelClockHz: 2_000_000,
		integrate:       integrateTSL14xx,
	}
	TSL1412S = Profile{
		Name:            "TSL1412S",
		Samples:         1536,
		MaxPixelClockHz: 8_000_000,
		integrate:       integrateTSL14xx,
	}
	TCD1103 = Profile{
		Name:            "TCD1103",
		Samples:         1546,
		LeadingDummies:  32,
		TrailingDummies: 14,
		Inverted:        true,
		MaxPixelClockHz: 2_000_000,
		integrate:       integrateTCD1103,
	}
)

// LookupProfile returns the profile for a sensor type name as used in
// configuration ("tsl1410r", "tsl1412s", "tcd1103").
func LookupProfile(name string) (Profile, error) {
	switch name {
	case "tsl1410r":
		return TSL1410R, nil
	case "tsl1412s":
		return TSL1412S, nil
	case "tcd1103":
		return TCD1103, nil
	}
	return Profile{}, fmt.Errorf("no image sensor profile for %q", name)
}
