package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical plunger defaults file.
const DefaultConfigPath = "config/plunger.defaults.json"

// Sensor type names accepted in sensor_type.
const (
	SensorNone     = "none"
	SensorTSL1410R = "tsl1410r"
	SensorTSL1412S = "tsl1412s"
	SensorTCD1103  = "tcd1103"
	SensorToF      = "tof"
	SensorRotary   = "rotary"
	SensorPot      = "pot"
)

var knownSensors = map[string]bool{
	SensorNone:     true,
	SensorTSL1410R: true,
	SensorTSL1412S: true,
	SensorTCD1103:  true,
	SensorToF:      true,
	SensorRotary:   true,
	SensorPot:      true,
}

// PlungerConfig holds the sensor selection and every tuning knob of the
// sensing pipeline. Fields are pointers so a partial JSON file only
// overrides what it names; the Get* methods supply the defaults.
type PlungerConfig struct {
	SensorType         *string `json:"sensor_type,omitempty"`
	ReverseOrientation *bool   `json:"reverse_orientation,omitempty"`
	ReadTimeout        *string `json:"read_timeout,omitempty"`  // duration string like "3ms"
	PollInterval       *string `json:"poll_interval,omitempty"` // duration string like "2ms"

	// Image sensor acquisition
	MinIntegration *string `json:"min_integration,omitempty"`
	PixelClockHz   *int    `json:"pixel_clock_hz,omitempty"`

	// Edge detection
	EndSampleCount  *int `json:"end_sample_count,omitempty"`
	ContrastMargin  *int `json:"contrast_margin,omitempty"`
	BoundaryMargin  *int `json:"boundary_margin,omitempty"`
	MinUsablePixels *int `json:"min_usable_pixels,omitempty"`
	MidpointHistory *int `json:"midpoint_history,omitempty"`

	// Jitter filter
	JitterHistory   *int `json:"jitter_history,omitempty"`
	JitterTolerance *int `json:"jitter_tolerance,omitempty"`

	// Rotary encoder
	RotaryScaleMax         *int     `json:"rotary_scale_max,omitempty"`
	RotaryExcursionDivisor *int     `json:"rotary_excursion_divisor,omitempty"`
	LinkageRatio           *float64 `json:"linkage_ratio,omitempty"`
	DefaultMaxAngleDeg     *float64 `json:"default_max_angle_deg,omitempty"`
	LinearZero             *int     `json:"linear_zero,omitempty"`

	// Time-of-flight over UART
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaud     *int    `json:"serial_baud,omitempty"`
	ToFMinRangeMM  *int    `json:"tof_min_range_mm,omitempty"`
	ToFMaxRangeMM  *int    `json:"tof_max_range_mm,omitempty"`
	ToFMinStrength *int    `json:"tof_min_strength,omitempty"`

	// Potentiometer
	PotSamples *int `json:"pot_samples,omitempty"`

	// Status
	HistoryLength *int `json:"history_length,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPlungerConfig returns a PlungerConfig with all fields set to nil.
func EmptyPlungerConfig() *PlungerConfig {
	return &PlungerConfig{}
}

// DefaultPlungerConfig returns a config with every field populated with its
// default value. It is what the defaults file contains.
func DefaultPlungerConfig() *PlungerConfig {
	c := EmptyPlungerConfig()
	return &PlungerConfig{
		SensorType:             ptrString(c.GetSensorType()),
		ReverseOrientation:     ptrBool(c.GetReverseOrientation()),
		ReadTimeout:            ptrString(c.GetReadTimeout().String()),
		PollInterval:           ptrString(c.GetPollInterval().String()),
		MinIntegration:         ptrString(c.GetMinIntegration().String()),
		PixelClockHz:           ptrInt(c.GetPixelClockHz()),
		EndSampleCount:         ptrInt(c.GetEndSampleCount()),
		ContrastMargin:         ptrInt(c.GetContrastMargin()),
		BoundaryMargin:         ptrInt(c.GetBoundaryMargin()),
		MinUsablePixels:        ptrInt(c.GetMinUsablePixels()),
		MidpointHistory:        ptrInt(c.GetMidpointHistory()),
		JitterHistory:          ptrInt(c.GetJitterHistory()),
		JitterTolerance:        ptrInt(c.GetJitterTolerance()),
		RotaryScaleMax:         ptrInt(c.GetRotaryScaleMax()),
		RotaryExcursionDivisor: ptrInt(c.GetRotaryExcursionDivisor()),
		LinkageRatio:           ptrFloat64(c.GetLinkageRatio()),
		DefaultMaxAngleDeg:     ptrFloat64(c.GetDefaultMaxAngleDeg()),
		LinearZero:             ptrInt(c.GetLinearZero()),
		SerialPort:             ptrString(c.GetSerialPort()),
		SerialBaud:             ptrInt(c.GetSerialBaud()),
		ToFMinRangeMM:          ptrInt(c.GetToFMinRangeMM()),
		ToFMaxRangeMM:          ptrInt(c.GetToFMaxRangeMM()),
		ToFMinStrength:         ptrInt(c.GetToFMinStrength()),
		PotSamples:             ptrInt(c.GetPotSamples()),
		HistoryLength:          ptrInt(c.GetHistoryLength()),
	}
}

// LoadPlungerConfig loads a PlungerConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults.
func LoadPlungerConfig(path string) (*PlungerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPlungerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *PlungerConfig) Validate() error {
	if c.SensorType != nil && !knownSensors[*c.SensorType] {
		return fmt.Errorf("unknown sensor_type %q", *c.SensorType)
	}

	for name, v := range map[string]*string{
		"read_timeout":    c.ReadTimeout,
		"poll_interval":   c.PollInterval,
		"min_integration": c.MinIntegration,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	positive := []struct {
		name string
		v    *int
	}{
		{"pixel_clock_hz", c.PixelClockHz},
		{"end_sample_count", c.EndSampleCount},
		{"min_usable_pixels", c.MinUsablePixels},
		{"midpoint_history", c.MidpointHistory},
		{"jitter_history", c.JitterHistory},
		{"rotary_scale_max", c.RotaryScaleMax},
		{"rotary_excursion_divisor", c.RotaryExcursionDivisor},
		{"serial_baud", c.SerialBaud},
		{"pot_samples", c.PotSamples},
		{"history_length", c.HistoryLength},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *int
	}{
		{"contrast_margin", c.ContrastMargin},
		{"boundary_margin", c.BoundaryMargin},
		{"jitter_tolerance", c.JitterTolerance},
		{"tof_min_range_mm", c.ToFMinRangeMM},
		{"tof_min_strength", c.ToFMinStrength},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", p.name, *p.v)
		}
	}

	if c.LinkageRatio != nil && *c.LinkageRatio <= 0 {
		return fmt.Errorf("linkage_ratio must be positive, got %f", *c.LinkageRatio)
	}
	if c.DefaultMaxAngleDeg != nil && (*c.DefaultMaxAngleDeg <= 0 || *c.DefaultMaxAngleDeg >= 90) {
		return fmt.Errorf("default_max_angle_deg must be between 0 and 90, got %f", *c.DefaultMaxAngleDeg)
	}
	if c.LinearZero != nil && (*c.LinearZero < 0 || *c.LinearZero >= 65535) {
		return fmt.Errorf("linear_zero must be in [0, 65535), got %d", *c.LinearZero)
	}
	if c.GetToFMaxRangeMM() <= c.GetToFMinRangeMM() {
		return fmt.Errorf("tof_max_range_mm (%d) must exceed tof_min_range_mm (%d)",
			c.GetToFMaxRangeMM(), c.GetToFMinRangeMM())
	}
	if 2*c.GetEndSampleCount() > c.GetMinUsablePixels() {
		return fmt.Errorf("end_sample_count %d needs at least %d usable pixels, min_usable_pixels is %d",
			c.GetEndSampleCount(), 2*c.GetEndSampleCount(), c.GetMinUsablePixels())
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetSensorType returns the configured sensor type name or the default.
func (c *PlungerConfig) GetSensorType() string {
	if c.SensorType == nil || *c.SensorType == "" {
		return SensorNone // default
	}
	return *c.SensorType
}

// GetReverseOrientation reports whether positions are mirrored end to end.
func (c *PlungerConfig) GetReverseOrientation() bool {
	if c.ReverseOrientation == nil {
		return false // default
	}
	return *c.ReverseOrientation
}

// GetReadTimeout returns the bounded wait a single Read may spend.
func (c *PlungerConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 3*time.Millisecond)
}

// GetPollInterval returns the interval between reads in the polling loop.
func (c *PlungerConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 2*time.Millisecond)
}

// GetMinIntegration returns the minimum integration time between captures.
func (c *PlungerConfig) GetMinIntegration() time.Duration {
	return durationOr(c.MinIntegration, 0)
}

func (c *PlungerConfig) GetPixelClockHz() int {
	if c.PixelClockHz == nil {
		return 1_000_000 // default
	}
	return *c.PixelClockHz
}

func (c *PlungerConfig) GetEndSampleCount() int {
	if c.EndSampleCount == nil {
		return 5 // default
	}
	return *c.EndSampleCount
}

func (c *PlungerConfig) GetContrastMargin() int {
	if c.ContrastMargin == nil {
		return 10 // default
	}
	return *c.ContrastMargin
}

func (c *PlungerConfig) GetBoundaryMargin() int {
	if c.BoundaryMargin == nil {
		return 1 // default
	}
	return *c.BoundaryMargin
}

func (c *PlungerConfig) GetMinUsablePixels() int {
	if c.MinUsablePixels == nil {
		return 10 // default
	}
	return *c.MinUsablePixels
}

func (c *PlungerConfig) GetMidpointHistory() int {
	if c.MidpointHistory == nil {
		return 10 // default
	}
	return *c.MidpointHistory
}

func (c *PlungerConfig) GetJitterHistory() int {
	if c.JitterHistory == nil {
		return 8 // default
	}
	return *c.JitterHistory
}

func (c *PlungerConfig) GetJitterTolerance() int {
	if c.JitterTolerance == nil {
		return 2 // default
	}
	return *c.JitterTolerance
}

func (c *PlungerConfig) GetRotaryScaleMax() int {
	if c.RotaryScaleMax == nil {
		return 4096 // default, 12-bit encoder
	}
	return *c.RotaryScaleMax
}

func (c *PlungerConfig) GetRotaryExcursionDivisor() int {
	if c.RotaryExcursionDivisor == nil {
		return 12 // default, 30 degrees
	}
	return *c.RotaryExcursionDivisor
}

func (c *PlungerConfig) GetLinkageRatio() float64 {
	if c.LinkageRatio == nil {
		return 2.0 // default
	}
	return *c.LinkageRatio
}

func (c *PlungerConfig) GetDefaultMaxAngleDeg() float64 {
	if c.DefaultMaxAngleDeg == nil {
		return 35 // default
	}
	return *c.DefaultMaxAngleDeg
}

func (c *PlungerConfig) GetLinearZero() int {
	if c.LinearZero == nil {
		return 65535 / 6 // default
	}
	return *c.LinearZero
}

func (c *PlungerConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyS0" // default
	}
	return *c.SerialPort
}

func (c *PlungerConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200 // default
	}
	return *c.SerialBaud
}

func (c *PlungerConfig) GetToFMinRangeMM() int {
	if c.ToFMinRangeMM == nil {
		return 0 // default
	}
	return *c.ToFMinRangeMM
}

func (c *PlungerConfig) GetToFMaxRangeMM() int {
	if c.ToFMaxRangeMM == nil {
		return 150 // default
	}
	return *c.ToFMaxRangeMM
}

func (c *PlungerConfig) GetToFMinStrength() int {
	if c.ToFMinStrength == nil {
		return 100 // default
	}
	return *c.ToFMinStrength
}

func (c *PlungerConfig) GetPotSamples() int {
	if c.PotSamples == nil {
		return 4 // default
	}
	return *c.PotSamples
}

func (c *PlungerConfig) GetHistoryLength() int {
	if c.HistoryLength == nil {
		return 500 // default
	}
	return *c.HistoryLength
}
