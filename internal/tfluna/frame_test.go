package tfluna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownBytes(t *testing.T) {
	// 0x0123 cm, strength 0x0456, temp 0x0789
	b := Encode(Frame{DistanceMM: 0x0123 * 10, Strength: 0x0456, TempRaw: 0x0789}, Centimetres)
	want := [FrameSize]byte{0x59, 0x59, 0x23, 0x01, 0x56, 0x04, 0x89, 0x07, 0}
	var sum byte
	for _, v := range want[:8] {
		sum += v
	}
	want[8] = sum
	assert.Equal(t, want, b)
}

func TestParser_RoundTripsMillimetres(t *testing.T) {
	in := Frame{DistanceMM: 87, Strength: 1200, TempRaw: 2248}
	b := Encode(in, Millimetres)

	p := &Parser{Unit: Millimetres}
	var got []Frame
	p.Write(b[:], func(f Frame) { got = append(got, f) })

	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
	assert.InDelta(t, 25.0, got[0].TempC(), 1e-9)
}

func TestParser_ResyncsAfterGarbage(t *testing.T) {
	f1 := Encode(Frame{DistanceMM: 50, Strength: 500}, Millimetres)
	f2 := Encode(Frame{DistanceMM: 60, Strength: 500}, Millimetres)
	corrupt := f1
	corrupt[8]++

	var stream []byte
	stream = append(stream, 0x00, 0x59, 0x13, 0x59)
	stream = append(stream, corrupt[:]...)
	stream = append(stream, 0xFF)
	stream = append(stream, f2[:]...)

	p := &Parser{Unit: Millimetres}
	var got []uint16
	p.Write(stream, func(f Frame) { got = append(got, f.DistanceMM) })

	assert.Equal(t, []uint16{60}, got)
	assert.Equal(t, uint64(1), p.Frames)
	assert.Equal(t, uint64(1), p.BadChecksums)
}

func TestFrame_Reliable(t *testing.T) {
	assert.True(t, Frame{Strength: 100}.Reliable(100))
	assert.False(t, Frame{Strength: 99}.Reliable(100))
	assert.False(t, Frame{Strength: 0xFFFF}.Reliable(100))
}

func TestCmdMillimetreOutputChecksum(t *testing.T) {
	n := len(CmdMillimetreOutput)
	assert.Equal(t, checksum(CmdMillimetreOutput[:n-1]), CmdMillimetreOutput[n-1])
}
