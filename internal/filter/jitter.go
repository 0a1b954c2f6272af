package filter

// JitterFilter suppresses small oscillations in a position stream. A new
// value within Tolerance of every value in the history is replaced by the
// history mean and not recorded, so a stationary plunger reads as a constant.
// Any larger move passes through unchanged and is recorded.
type JitterFilter struct {
	hist      *Ring
	tolerance int
}

// NewJitterFilter returns a filter remembering history values with the given
// tolerance. A zero tolerance only smooths exact repeats.
func NewJitterFilter(history, tolerance int) *JitterFilter {
	if tolerance < 0 {
		tolerance = 0
	}
	return &JitterFilter{hist: NewRing(history), tolerance: tolerance}
}

// Apply filters one position.
func (f *JitterFilter) Apply(v int) int {
	if f.hist.Len() == 0 || !f.withinTolerance(v) {
		f.hist.Push(v)
		return v
	}
	mean, _ := f.hist.Mean()
	return mean
}

func (f *JitterFilter) withinTolerance(v int) bool {
	for i := 0; i < f.hist.Len(); i++ {
		d := v - f.hist.At(i)
		if d < -f.tolerance || d > f.tolerance {
			return false
		}
	}
	return true
}

// History returns the recorded values, oldest first.
func (f *JitterFilter) History() []int {
	return f.hist.Values()
}

// Reset clears the history.
func (f *JitterFilter) Reset() {
	f.hist.Reset()
}
