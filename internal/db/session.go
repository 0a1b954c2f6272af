package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the sensor reader.
type Session struct {
	ID         string     `json:"session_id"`
	SensorKind string     `json:"sensor_kind"`
	Started    time.Time  `json:"started"`
	Ended      *time.Time `json:"ended,omitempty"`
	Reads      uint64     `json:"reads"`
	Failures   uint64     `json:"failures"`
	AvgScanUS  uint32     `json:"avg_scan_us"`
}

// StartSession records the start of a reader session and returns its id.
func (db *DB) StartSession(kind string, at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO sensor_sessions (session_id, sensor_kind, started_unix_nanos)
		VALUES (?, ?, ?)`, id, kind, at.UnixNano()); err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// FinishSession records the end of a session with its read counters.
func (db *DB) FinishSession(id string, at time.Time, reads, failures uint64, avgScanUS uint32) error {
	res, err := db.Exec(`UPDATE sensor_sessions
		SET ended_unix_nanos = ?, reads = ?, failures = ?, avg_scan_us = ?
		WHERE session_id = ?`, at.UnixNano(), reads, failures, avgScanUS, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT session_id, sensor_kind, started_unix_nanos, ended_unix_nanos,
			reads, failures, avg_scan_us
		FROM sensor_sessions ORDER BY started_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   *int64
		)
		if err := rows.Scan(&s.ID, &s.SensorKind, &started, &ended, &s.Reads, &s.Failures, &s.AvgScanUS); err != nil {
			return nil, err
		}
		s.Started = time.Unix(0, started).UTC()
		if ended != nil {
			e := time.Unix(0, *ended).UTC()
			s.Ended = &e
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
