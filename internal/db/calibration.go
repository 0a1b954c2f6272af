package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/plunger.sense/internal/plunger"
)

// ErrNoCalibration is returned when no record exists for a sensor type.
var ErrNoCalibration = errors.New("no saved calibration")

// CalibrationRun is one saved calibration.
type CalibrationRun struct {
	RunID      string                    `json:"run_id"`
	SensorKind string                    `json:"sensor_kind"`
	Record     plunger.CalibrationRecord `json:"record"`
	Created    time.Time                 `json:"created"`
}

// SaveCalibration stores rec as the newest calibration for kind and returns
// the run identifier.
func (db *DB) SaveCalibration(kind string, rec plunger.CalibrationRecord, at time.Time) (string, error) {
	blob, err := rec.MarshalBinary()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = db.Exec(`INSERT INTO calibrations (
			run_id, sensor_kind, calibrated, raw0, raw1, zero_pos, min_pos, max_pos,
			t_release_ms, record, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, kind, rec.Calibrated, rec.Raw0, rec.Raw1, rec.Zero, rec.Min, rec.Max,
		rec.TRelease, blob, at.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save calibration: %w", err)
	}
	return id, nil
}

// LoadCalibration returns the newest calibration for kind.
func (db *DB) LoadCalibration(kind string) (plunger.CalibrationRecord, error) {
	var blob []byte
	err := db.QueryRow(`SELECT record FROM calibrations
		WHERE sensor_kind = ?
		ORDER BY created_unix_nanos DESC, rowid DESC LIMIT 1`, kind).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return plunger.CalibrationRecord{}, ErrNoCalibration
	}
	if err != nil {
		return plunger.CalibrationRecord{}, fmt.Errorf("failed to load calibration: %w", err)
	}
	var rec plunger.CalibrationRecord
	if err := rec.UnmarshalBinary(blob); err != nil {
		return plunger.CalibrationRecord{}, err
	}
	return rec, nil
}

// CalibrationHistory returns up to limit calibrations for kind, newest first.
func (db *DB) CalibrationHistory(kind string, limit int) ([]CalibrationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT run_id, sensor_kind, record, created_unix_nanos
		FROM calibrations WHERE sensor_kind = ?
		ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrations: %w", err)
	}
	defer rows.Close()

	var runs []CalibrationRun
	for rows.Next() {
		var (
			run   CalibrationRun
			blob  []byte
			nanos int64
		)
		if err := rows.Scan(&run.RunID, &run.SensorKind, &blob, &nanos); err != nil {
			return nil, err
		}
		if err := run.Record.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("calibration %s: %w", run.RunID, err)
		}
		run.Created = time.Unix(0, nanos).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
