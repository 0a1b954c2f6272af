// Package filter holds the small fixed-size histories and smoothing filters
// shared by the plunger sensors.
package filter

// Ring is a fixed-capacity circular history of ints. Pushing into a full ring
// overwrites the oldest entry.
type Ring struct {
	buf  []int
	next int
	n    int
}

// NewRing returns an empty ring holding at most capacity values.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]int, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (r *Ring) Push(v int) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Len returns the number of values held.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// At returns the i'th value, oldest first.
func (r *Ring) At(i int) int {
	start := (r.next - r.n + len(r.buf)) % len(r.buf)
	return r.buf[(start+i)%len(r.buf)]
}

// Values returns the held values, oldest first.
func (r *Ring) Values() []int {
	out := make([]int, r.n)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Mean returns the rounded mean of the held values. ok is false when empty.
func (r *Ring) Mean() (mean int, ok bool) {
	if r.n == 0 {
		return 0, false
	}
	sum := 0
	for i := 0; i < r.n; i++ {
		sum += r.At(i)
	}
	if sum < 0 {
		return (sum - r.n/2) / r.n, true
	}
	return (sum + r.n/2) / r.n, true
}

// Reset empties the ring.
func (r *Ring) Reset() {
	r.next, r.n = 0, 0
}
