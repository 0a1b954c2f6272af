package timeutil

import "time"

// MicroClock is a free-running 32-bit microsecond counter derived from a
// Clock. It wraps every 2^32 microseconds (about 71.6 minutes), so callers
// must only compare counter values through ElapsedMicros.
type MicroClock struct {
	clock  Clock
	epoch  time.Time
	offset uint32
}

// NewMicroClock returns a counter reading zero at the clock's current time.
func NewMicroClock(c Clock) *MicroClock {
	return NewMicroClockAt(c, 0)
}

// NewMicroClockAt returns a counter reading start at the clock's current
// time. Tests use it to place the counter just below the wrap point.
func NewMicroClockAt(c Clock, start uint32) *MicroClock {
	return &MicroClock{clock: c, epoch: c.Now(), offset: start}
}

// Micros returns the current counter value.
func (m *MicroClock) Micros() uint32 {
	return m.At(m.clock.Now())
}

// At converts a wall time on the same clock to a counter value.
func (m *MicroClock) At(t time.Time) uint32 {
	return m.offset + uint32(t.Sub(m.epoch).Microseconds())
}

// Clock returns the underlying clock.
func (m *MicroClock) Clock() Clock {
	return m.clock
}

// ElapsedMicros returns to-from modulo 2^32. The result is correct across a
// single counter wrap.
func ElapsedMicros(from, to uint32) uint32 {
	return to - from
}

// MidpointMicros returns the counter value halfway between from and to,
// honouring a wrap between them.
func MidpointMicros(from, to uint32) uint32 {
	return from + ElapsedMicros(from, to)/2
}
