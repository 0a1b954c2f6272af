package main

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/serialport"
	"github.com/banshee-data/plunger.sense/internal/tfluna"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// simParkRaw is where the simulated encoder reads at park, chosen near the
// top of the range so that pulling back wraps through zero.
const simParkRaw = 3900

// simResources builds the software backend for the configured sensor. The
// returned function stops any device goroutines.
func simResources(ctx context.Context, cfg *config.PlungerConfig, micros *timeutil.MicroClock, model *sim.PlungerModel) (plunger.Resources, func(), error) {
	res := plunger.Resources{Micros: micros}
	stop := func() {}
	clock := micros.Clock()

	switch kind := cfg.GetSensorType(); kind {
	case config.SensorNone:
	case config.SensorTSL1410R, config.SensorTSL1412S, config.SensorTCD1103:
		profile, err := imaging.LookupProfile(kind)
		if err != nil {
			return res, stop, err
		}
		shadow := sim.NewShadow(model)
		shadow.LeadingDummies = profile.LeadingDummies
		shadow.TrailingDummies = profile.TrailingDummies
		shadow.Inverted = profile.Inverted
		shadow.Reverse = cfg.GetReverseOrientation()
		res.Transfer = sim.NewTransfer(clock, cfg.GetPixelClockHz(), shadow.Fill)
		res.PixelClock = &sim.ClockGen{}
	case config.SensorRotary:
		res.Angle = &sim.Angle{
			Model:        model,
			ScaleMax:     cfg.GetRotaryScaleMax(),
			ParkRaw:      simParkRaw % cfg.GetRotaryScaleMax(),
			Sweep:        40 * math.Pi / 180,
			LinkageRatio: cfg.GetLinkageRatio(),
		}
	case config.SensorPot:
		res.ADC = &sim.ADC{Model: model, Noise: 40}
	case config.SensorToF:
		port := serialport.NewTestableSerialPort()
		dev := &sim.ToF{
			Model:    model,
			Port:     port,
			MinMM:    cfg.GetToFMinRangeMM(),
			MaxMM:    cfg.GetToFMaxRangeMM(),
			Strength: 2000,
			Unit:     tfluna.Millimetres,
		}
		devCtx, cancel := context.WithCancel(ctx)
		go dev.Run(devCtx, clock)
		res.Port = port
		stop = cancel
	default:
		return res, stop, fmt.Errorf("%w: %q", plunger.ErrUnknownSensor, kind)
	}
	return res, stop, nil
}

// hardwareResources opens the physical devices for the configured sensor.
// Only serial devices can be reached from user space; image sensors, the
// encoder and the ADC need the firmware build.
func hardwareResources(cfg *config.PlungerConfig, micros *timeutil.MicroClock) (plunger.Resources, error) {
	res := plunger.Resources{Micros: micros}
	switch kind := cfg.GetSensorType(); kind {
	case config.SensorNone:
		return res, nil
	case config.SensorToF:
		port, err := serialport.Open(cfg.GetSerialPort(), serialport.PortOptions{BaudRate: cfg.GetSerialBaud()})
		if err != nil {
			return res, err
		}
		res.Port = port
		return res, nil
	default:
		return res, fmt.Errorf("no user-space driver for %q; run with -sim", kind)
	}
}
