package plunger

import "github.com/banshee-data/plunger.sense/internal/timeutil"

// NativeMax is the top of the normalized position scale.
const NativeMax = 65535

// Reading is one plunger position sample.
type Reading struct {
	// Pos is the position on the native scale, 0 (fully forward) to
	// NativeMax (fully retracted).
	Pos uint16 `json:"pos"`
	// T is the sample time on the free-running 32-bit microsecond counter.
	T uint32 `json:"t"`
}

// Elapsed returns the microseconds from a to b, correct across one wrap of
// the counter.
func Elapsed(a, b Reading) uint32 {
	return timeutil.ElapsedMicros(a.T, b.T)
}

// scaleToNative maps v in [0, max] onto [0, NativeMax], clamping.
func scaleToNative(v, max int) uint16 {
	if max <= 0 || v <= 0 {
		return 0
	}
	if v >= max {
		return NativeMax
	}
	return uint16(v * NativeMax / max)
}

func clampNative(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > NativeMax {
		return NativeMax
	}
	return uint16(v)
}

func orient(pos uint16, reverse bool) uint16 {
	if reverse {
		return NativeMax - pos
	}
	return pos
}
