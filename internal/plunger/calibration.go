package plunger

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CalibrationRecordSize is the length of the binary encoding.
const CalibrationRecordSize = 12

// ErrShortRecord is returned when decoding fewer than CalibrationRecordSize bytes.
var ErrShortRecord = errors.New("plunger: calibration record too short")

// DefaultReleaseMillis is the assumed release time before one is measured.
const DefaultReleaseMillis = 65

// CalibrationRecord is the persisted calibration shared with the
// configuration store.
type CalibrationRecord struct {
	Calibrated bool `json:"calibrated"`
	// Raw0 and Raw1 are sensor-specific raw values. Rotary sensors store the
	// raw park angle and the swept angle.
	Raw0 uint16 `json:"raw0"`
	Raw1 uint16 `json:"raw1"`
	// Zero, Min and Max are native positions of park, full forward and full
	// retraction.
	Zero uint16 `json:"zero"`
	Min  uint16 `json:"min"`
	Max  uint16 `json:"max"`
	// TRelease is the measured release time in milliseconds.
	TRelease uint8 `json:"t_release"`
}

// DefaultCalibration returns the record used before any calibration.
func DefaultCalibration() CalibrationRecord {
	return CalibrationRecord{
		Zero:     NativeMax / 6,
		Max:      NativeMax,
		TRelease: DefaultReleaseMillis,
	}
}

// MarshalBinary encodes the record as
//
//	flags(1) raw0(2) raw1(2) zero(2) min(2) max(2) tRelease(1)
//
// with little-endian fields and bit 0 of flags set when calibrated.
func (c CalibrationRecord) MarshalBinary() ([]byte, error) {
	b := make([]byte, CalibrationRecordSize)
	if c.Calibrated {
		b[0] = 1
	}
	binary.LittleEndian.PutUint16(b[1:], c.Raw0)
	binary.LittleEndian.PutUint16(b[3:], c.Raw1)
	binary.LittleEndian.PutUint16(b[5:], c.Zero)
	binary.LittleEndian.PutUint16(b[7:], c.Min)
	binary.LittleEndian.PutUint16(b[9:], c.Max)
	b[11] = c.TRelease
	return b, nil
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (c *CalibrationRecord) UnmarshalBinary(b []byte) error {
	if len(b) < CalibrationRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	c.Calibrated = b[0]&1 != 0
	c.Raw0 = binary.LittleEndian.Uint16(b[1:])
	c.Raw1 = binary.LittleEndian.Uint16(b[3:])
	c.Zero = binary.LittleEndian.Uint16(b[5:])
	c.Min = binary.LittleEndian.Uint16(b[7:])
	c.Max = binary.LittleEndian.Uint16(b[9:])
	c.TRelease = b[11]
	return nil
}
