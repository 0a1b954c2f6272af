// Package tfluna encodes and decodes the 9-byte measurement frames streamed
// by Benewake TF-Luna and TFmini range finders over UART:
//
//	0x59 0x59 DistL DistH StrL StrH TempL TempH Checksum
//
// Checksum is the low byte of the sum of the first eight bytes.
package tfluna

import "encoding/binary"

const (
	header    = 0x59
	FrameSize = 9
)

// Unit is the distance unit the device is configured to stream.
type Unit int

const (
	Centimetres Unit = iota // factory default
	Millimetres
)

// CmdMillimetreOutput switches the device to 9-byte frames in millimetres.
var CmdMillimetreOutput = []byte{0x5A, 0x05, 0x05, 0x06, 0x6A}

// Frame is one decoded measurement.
type Frame struct {
	DistanceMM uint16
	Strength   uint16
	TempRaw    uint16
}

// TempC returns the chip temperature in degrees Celsius.
func (f Frame) TempC() float64 {
	return float64(f.TempRaw)/8 - 256
}

// Reliable reports whether the signal strength is within the range the
// device documents as trustworthy: at least minStrength and not saturated.
func (f Frame) Reliable(minStrength int) bool {
	return int(f.Strength) >= minStrength && f.Strength != 0xFFFF
}

// Encode renders f as it appears on the wire in unit u. Centimetre output
// truncates DistanceMM.
func Encode(f Frame, u Unit) [FrameSize]byte {
	var b [FrameSize]byte
	b[0], b[1] = header, header
	d := f.DistanceMM
	if u == Centimetres {
		d /= 10
	}
	binary.LittleEndian.PutUint16(b[2:], d)
	binary.LittleEndian.PutUint16(b[4:], f.Strength)
	binary.LittleEndian.PutUint16(b[6:], f.TempRaw)
	b[8] = checksum(b[:8])
	return b
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Parser reassembles frames from a byte stream, resynchronizing on the
// double header after noise or a checksum failure.
type Parser struct {
	Unit Unit

	buf [FrameSize]byte
	n   int

	// Frames and BadChecksums count parser outcomes.
	Frames       uint64
	BadChecksums uint64
}

// Feed consumes one byte and returns a frame when one completes.
func (p *Parser) Feed(c byte) (Frame, bool) {
	switch p.n {
	case 0:
		if c == header {
			p.buf[0] = c
			p.n = 1
		}
		return Frame{}, false
	case 1:
		if c == header {
			p.buf[1] = c
			p.n = 2
		} else {
			p.n = 0
		}
		return Frame{}, false
	}

	p.buf[p.n] = c
	p.n++
	if p.n < FrameSize {
		return Frame{}, false
	}
	p.n = 0

	if checksum(p.buf[:8]) != p.buf[8] {
		p.BadChecksums++
		return Frame{}, false
	}
	p.Frames++
	d := binary.LittleEndian.Uint16(p.buf[2:])
	if p.Unit == Centimetres {
		d *= 10
	}
	return Frame{
		DistanceMM: d,
		Strength:   binary.LittleEndian.Uint16(p.buf[4:]),
		TempRaw:    binary.LittleEndian.Uint16(p.buf[6:]),
	}, true
}

// Write feeds b and calls emit for every completed frame.
func (p *Parser) Write(b []byte, emit func(Frame)) {
	for _, c := range b {
		if f, ok := p.Feed(c); ok {
			emit(f)
		}
	}
}
