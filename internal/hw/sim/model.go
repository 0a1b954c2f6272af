// Package sim is a software hardware backend. A PlungerModel moves a virtual
// plunger on a timeutil.Clock and each simulated device reports it the way the
// matching physical sensor would.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// Park is the model position of a plunger at rest.
const Park = 1.0 / 6

// PlungerModel produces the plunger position as a fraction of full travel:
// 0 fully forward, 1 fully retracted. By default it repeats a pull, hold and
// release cycle; SetPosition pins it in place.
type PlungerModel struct {
	clock  timeutil.Clock
	start  time.Time
	period time.Duration

	mu    sync.Mutex
	fixed *float64
}

// NewPlungerModel returns a model cycling with the given period.
func NewPlungerModel(clock timeutil.Clock, period time.Duration) *PlungerModel {
	if period <= 0 {
		period = 4 * time.Second
	}
	return &PlungerModel{clock: clock, start: clock.Now(), period: period}
}

// SetPosition pins the model at p.
func (m *PlungerModel) SetPosition(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = &p
}

// Release returns the model to its cycle.
func (m *PlungerModel) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = nil
	m.start = m.clock.Now()
}

// Position returns the current position.
func (m *PlungerModel) Position() float64 {
	m.mu.Lock()
	fixed := m.fixed
	start := m.start
	m.mu.Unlock()
	if fixed != nil {
		return *fixed
	}

	phase := float64(m.clock.Since(start)%m.period) / float64(m.period)
	switch {
	case phase < 0.1: // resting
		return Park
	case phase < 0.5: // pulling back
		return Park + (1-Park)*(phase-0.1)/0.4
	case phase < 0.7: // held
		return 1
	case phase < 0.72: // released, overshooting past park
		return 1 - (1+0.1)*(phase-0.7)/0.02
	default: // damped bounce settling at park
		t := (phase - 0.72) / 0.28
		return Park - 0.1*math.Exp(-6*t)*math.Cos(5*math.Pi*t)
	}
}
