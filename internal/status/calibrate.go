package status

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

var (
	// ErrNotCalibratable is returned for sensors without calibration.
	ErrNotCalibratable = errors.New("sensor has no calibration")
	// ErrCalibrating is returned when a pass is already running.
	ErrCalibrating = errors.New("calibration already running")
)

// Calibrate runs one calibration pass lasting d and fills rec. The plunger
// must be at rest when it starts; the user pulls and releases it during the
// pass. Readings keep flowing through Poll meanwhile. Cancelling ctx ends the
// pass early: rec is still filled and ctx's error returned, so the caller
// can decide not to persist it.
func (t *Tracker) Calibrate(ctx context.Context, clock timeutil.Clock, d time.Duration, rec *plunger.CalibrationRecord) error {
	if _, ok := t.sensor.(plunger.Calibrator); !ok {
		return ErrNotCalibratable
	}
	t.mu.Lock()
	if t.calibrating {
		t.mu.Unlock()
		return ErrCalibrating
	}
	t.calibrating = true
	t.mu.Unlock()
	defer t.SetCalibrating(false)

	monitoring.Logf("plunger: calibrating %s for %v", t.kind, d)
	plunger.BeginCalibration(t.sensor)

	timer := clock.NewTimer(d)
	defer timer.Stop()
	var err error
	select {
	case <-timer.C():
	case <-ctx.Done():
		err = ctx.Err()
	}

	plunger.EndCalibration(t.sensor, rec)
	monitoring.Logf("plunger: calibration done: raw0=%d raw1=%d zero=%d t_release=%dms",
		rec.Raw0, rec.Raw1, rec.Zero, rec.TRelease)
	return err
}
