// Package plunger defines the plunger position sensor abstraction and its
// implementations for image sensors, time-of-flight range finders, rotary
// encoders and potentiometers.
package plunger

import (
	"errors"
	"io"
)

var (
	// ErrUnknownSensor is returned by New for an unrecognized sensor type.
	ErrUnknownSensor = errors.New("plunger: unknown sensor type")
	// ErrMissingResource is returned by New when the hardware a sensor type
	// needs was not supplied.
	ErrMissingResource = errors.New("plunger: missing hardware resource")
)

// Sensor is a plunger position sensor. A sensor is constructed once, Init
// is called once, then Read is called repeatedly from a single goroutine.
type Sensor interface {
	// Init prepares the hardware and starts any background acquisition.
	Init() error

	// Read returns the latest position. It waits a bounded time for new data
	// and returns ok=false when none arrived or the data held no position;
	// callers keep their last good reading.
	Read() (r Reading, ok bool)

	// AvgScanTime returns the average time to take one sample, in
	// microseconds, for diagnostics.
	AvgScanTime() uint32
}

// Calibrator is implemented by sensors with sensor-specific calibration.
type Calibrator interface {
	// BeginCalibration starts a calibration pass. The plunger is at rest.
	BeginCalibration()
	// EndCalibration finishes the pass and stores the results in rec.
	EndCalibration(rec *CalibrationRecord)
	// RestoreCalibration loads rec at startup.
	RestoreCalibration(rec *CalibrationRecord)
}

// FrameSource is implemented by image sensors that can show their last frame.
type FrameSource interface {
	// LastFrame copies the most recent image into dst (growing it as needed)
	// and returns it with its timestamp.
	LastFrame(dst []byte) (pix []byte, t uint32, ok bool)
}

// Directional is implemented by sensors that detect their own orientation.
// Direction returns 1, -1, or 0 when unknown.
type Directional interface {
	Direction() int8
}

// BeginCalibration starts calibration on s if it supports it.
func BeginCalibration(s Sensor) bool {
	c, ok := s.(Calibrator)
	if ok {
		c.BeginCalibration()
	}
	return ok
}

// EndCalibration ends calibration on s if it supports it.
func EndCalibration(s Sensor, rec *CalibrationRecord) bool {
	c, ok := s.(Calibrator)
	if ok {
		c.EndCalibration(rec)
	}
	return ok
}

// RestoreCalibration restores calibration on s if it supports it.
func RestoreCalibration(s Sensor, rec *CalibrationRecord) bool {
	c, ok := s.(Calibrator)
	if ok {
		c.RestoreCalibration(rec)
	}
	return ok
}

// Close stops background work for sensors that have any.
func Close(s Sensor) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
