package plunger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/serialport"
)

func TestElapsed_AcrossCounterWrap(t *testing.T) {
	a := Reading{Pos: 100, T: 0xFFFFFFF0}
	b := Reading{Pos: 200, T: 0x00000010}
	assert.Equal(t, uint32(32), Elapsed(a, b))
	assert.Equal(t, uint32(0), Elapsed(b, b))
}

func TestScaleToNative(t *testing.T) {
	assert.Equal(t, uint16(0), scaleToNative(-5, 100))
	assert.Equal(t, uint16(0), scaleToNative(0, 100))
	assert.Equal(t, uint16(NativeMax), scaleToNative(100, 100))
	assert.Equal(t, uint16(NativeMax), scaleToNative(150, 100))
	assert.Equal(t, uint16(32767), scaleToNative(50, 100))
	assert.Equal(t, uint16(0), scaleToNative(10, 0))
}

func TestCalibrationRecord_Encoding(t *testing.T) {
	rec := CalibrationRecord{
		Calibrated: true,
		Raw0:       0x0FA0,
		Raw1:       0x01C7,
		Zero:       10922,
		Min:        0,
		Max:        NativeMax,
		TRelease:   48,
	}
	b, err := rec.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01,
		0xA0, 0x0F,
		0xC7, 0x01,
		0xAA, 0x2A,
		0x00, 0x00,
		0xFF, 0xFF,
		48,
	}, b)

	var got CalibrationRecord
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, rec, got)
}

func TestCalibrationRecord_Short(t *testing.T) {
	var rec CalibrationRecord
	err := rec.UnmarshalBinary(make([]byte, 11))
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestDefaultCalibration(t *testing.T) {
	rec := DefaultCalibration()
	assert.False(t, rec.Calibrated)
	assert.Equal(t, uint16(NativeMax/6), rec.Zero)
	assert.Equal(t, uint16(NativeMax), rec.Max)
	assert.Equal(t, uint8(DefaultReleaseMillis), rec.TRelease)
}

func TestNull(t *testing.T) {
	var s Sensor = Null{}
	require.NoError(t, s.Init())
	_, ok := s.Read()
	assert.False(t, ok)
	assert.Zero(t, s.AvgScanTime())

	rec := DefaultCalibration()
	assert.False(t, BeginCalibration(s))
	assert.False(t, EndCalibration(s, &rec))
	assert.False(t, RestoreCalibration(s, &rec))
	assert.Equal(t, DefaultCalibration(), rec)
	assert.NoError(t, Close(s))
}

func TestNew_NoneIsNull(t *testing.T) {
	s, err := New(config.EmptyPlungerConfig(), Resources{})
	require.NoError(t, err)
	assert.IsType(t, Null{}, s)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		sensor string
		res    Resources
		want   error
	}{
		{"unknown", "laser", Resources{Micros: testMicros()}, ErrUnknownSensor},
		{"no clock", config.SensorPot, Resources{}, ErrMissingResource},
		{"ccd without transfer", config.SensorTSL1410R, Resources{Micros: testMicros()}, ErrMissingResource},
		{"tof without port", config.SensorToF, Resources{Micros: testMicros()}, ErrMissingResource},
		{"rotary without encoder", config.SensorRotary, Resources{Micros: testMicros()}, ErrMissingResource},
		{"pot without adc", config.SensorPot, Resources{Micros: testMicros()}, ErrMissingResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EmptyPlungerConfig()
			cfg.SensorType = &tt.sensor
			_, err := New(cfg, tt.res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_BuildsEachSensor(t *testing.T) {
	res := Resources{
		Micros: testMicros(),
		ADC:    &fakeADC{},
		Angle:  &fakeAngle{},
		Port:   serialport.NewTestableSerialPort(),
	}
	tests := []struct {
		sensor string
		want   Sensor
	}{
		{config.SensorPot, &Potentiometer{}},
		{config.SensorRotary, &Rotary{}},
		{config.SensorToF, &TimeOfFlight{}},
	}
	for _, tt := range tests {
		t.Run(tt.sensor, func(t *testing.T) {
			cfg := config.EmptyPlungerConfig()
			cfg.SensorType = &tt.sensor
			s, err := New(cfg, res)
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

type fakeADC struct{ v uint16 }

func (f *fakeADC) ReadU16() (uint16, error) { return f.v, nil }
