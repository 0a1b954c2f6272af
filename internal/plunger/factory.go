package plunger

import (
	"fmt"
	"math"

	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/edge"
	"github.com/banshee-data/plunger.sense/internal/hw"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/rotary"
	"github.com/banshee-data/plunger.sense/internal/serialport"
	"github.com/banshee-data/plunger.sense/internal/tfluna"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// Resources is the hardware a sensor may be built on. Only the fields the
// configured sensor type needs must be set.
type Resources struct {
	Micros *timeutil.MicroClock

	// Image sensors.
	Transfer   hw.Transfer
	PixelClock hw.ClockGen
	Lines      imaging.Lines

	ADC   hw.ADC
	Angle hw.AngleSource
	Port  serialport.SerialPorter
}

// New builds the sensor selected by cfg.
func New(cfg *config.PlungerConfig, res Resources) (Sensor, error) {
	kind := cfg.GetSensorType()
	if kind == config.SensorNone {
		return Null{}, nil
	}
	if res.Micros == nil {
		return nil, fmt.Errorf("%w: microsecond clock", ErrMissingResource)
	}
	reverse := cfg.GetReverseOrientation()

	switch kind {
	case config.SensorTSL1410R, config.SensorTSL1412S, config.SensorTCD1103:
		if res.Transfer == nil || res.PixelClock == nil {
			return nil, fmt.Errorf("%w: %s needs a transfer and pixel clock", ErrMissingResource, kind)
		}
		profile, err := imaging.LookupProfile(kind)
		if err != nil {
			return nil, err
		}
		lines := res.Lines
		if lines.Start == nil {
			lines.Start = hw.NopPin{}
		}
		if lines.Shift == nil {
			lines.Shift = hw.NopPin{}
		}
		engine := imaging.NewEngine(imaging.Config{
			Profile:        profile,
			PixelClockHz:   cfg.GetPixelClockHz(),
			MinIntegration: cfg.GetMinIntegration(),
		}, res.Transfer, res.PixelClock, lines, res.Micros)
		return NewCCD(engine, CCDConfig{
			Edge: edge.Config{
				EndSamples:      cfg.GetEndSampleCount(),
				ContrastMargin:  cfg.GetContrastMargin(),
				BoundaryMargin:  cfg.GetBoundaryMargin(),
				MinPixels:       cfg.GetMinUsablePixels(),
				MidpointHistory: cfg.GetMidpointHistory(),
			},
			JitterHistory:   cfg.GetJitterHistory(),
			JitterTolerance: cfg.GetJitterTolerance(),
			ReadTimeout:     cfg.GetReadTimeout(),
			Reverse:         reverse,
		}), nil

	case config.SensorToF:
		if res.Port == nil {
			return nil, fmt.Errorf("%w: tof needs a serial port", ErrMissingResource)
		}
		return NewTimeOfFlight(res.Port, res.Micros, ToFConfig{
			MinRangeMM:      cfg.GetToFMinRangeMM(),
			MaxRangeMM:      cfg.GetToFMaxRangeMM(),
			MinStrength:     cfg.GetToFMinStrength(),
			Unit:            tfluna.Millimetres,
			JitterHistory:   cfg.GetJitterHistory(),
			JitterTolerance: cfg.GetJitterTolerance(),
			ReadTimeout:     cfg.GetReadTimeout(),
			Reverse:         reverse,
		}), nil

	case config.SensorRotary:
		if res.Angle == nil {
			return nil, fmt.Errorf("%w: rotary needs an angle source", ErrMissingResource)
		}
		return NewRotary(res.Angle, res.Micros, RotaryConfig{
			Config: rotary.Config{
				ScaleMax:         cfg.GetRotaryScaleMax(),
				ExcursionDivisor: cfg.GetRotaryExcursionDivisor(),
				LinkageRatio:     cfg.GetLinkageRatio(),
				DefaultMaxAngle:  cfg.GetDefaultMaxAngleDeg() * math.Pi / 180,
				LinearZero:       cfg.GetLinearZero(),
			},
			Reverse: reverse,
		}), nil

	case config.SensorPot:
		if res.ADC == nil {
			return nil, fmt.Errorf("%w: pot needs an ADC", ErrMissingResource)
		}
		return NewPotentiometer(res.ADC, res.Micros, PotConfig{
			Samples:         cfg.GetPotSamples(),
			JitterHistory:   cfg.GetJitterHistory(),
			JitterTolerance: cfg.GetJitterTolerance(),
			Reverse:         reverse,
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, kind)
}
