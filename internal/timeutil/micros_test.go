package timeutil

import (
	"testing"
	"time"
)

func TestElapsedMicros_Wrap(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint32
		want     uint32
	}{
		{"no wrap", 100, 350, 250},
		{"across wrap", 0xFFFFFFF0, 0x00000010, 32},
		{"same", 42, 42, 0},
		{"max span", 1, 0, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElapsedMicros(tt.from, tt.to); got != tt.want {
				t.Errorf("ElapsedMicros(%#x, %#x) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestMidpointMicros(t *testing.T) {
	if got := MidpointMicros(100, 300); got != 200 {
		t.Errorf("MidpointMicros(100, 300) = %d, want 200", got)
	}
	if got := MidpointMicros(0xFFFFFFF0, 0x10); got != 0 {
		t.Errorf("MidpointMicros across wrap = %#x, want 0", got)
	}
}

func TestMicroClock_TracksMockClock(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mc := NewMicroClock(clock)

	if got := mc.Micros(); got != 0 {
		t.Fatalf("initial Micros() = %d, want 0", got)
	}
	clock.Advance(1500 * time.Microsecond)
	if got := mc.Micros(); got != 1500 {
		t.Errorf("Micros() = %d, want 1500", got)
	}
}

func TestMicroClock_WrapsAt32Bits(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mc := NewMicroClockAt(clock, 0xFFFFFFF0)

	before := mc.Micros()
	clock.Advance(32 * time.Microsecond)
	after := mc.Micros()

	if after != 0x10 {
		t.Errorf("Micros() after wrap = %#x, want 0x10", after)
	}
	if d := ElapsedMicros(before, after); d != 32 {
		t.Errorf("elapsed across wrap = %d, want 32", d)
	}
}
