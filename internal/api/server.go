// Package api serves the plunger's HTTP surface: a small JSON API and the
// /debug/ diagnostics pages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/status"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// CalibrationStore persists calibration records.
type CalibrationStore interface {
	SaveCalibration(kind string, rec plunger.CalibrationRecord, at time.Time) (string, error)
	LoadCalibration(kind string) (plunger.CalibrationRecord, error)
}

type Server struct {
	tracker *status.Tracker
	store   CalibrationStore
	clock   timeutil.Clock

	// DefaultCalibration is the pass length when a request names none.
	DefaultCalibration time.Duration
	// MaxCalibration caps requested pass lengths.
	MaxCalibration time.Duration
}

// NewServer returns a server for tracker. store may be nil, in which case
// calibrations are applied but not persisted.
func NewServer(tracker *status.Tracker, store CalibrationStore, clock timeutil.Clock) *Server {
	return &Server{
		tracker:            tracker,
		store:              store,
		clock:              clock,
		DefaultCalibration: 10 * time.Second,
		MaxCalibration:     time.Minute,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/plunger", s.showSnapshot)
	mux.HandleFunc("/api/plunger/history", s.showHistory)
	mux.HandleFunc("/api/plunger/calibrate", s.calibrate)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to write response: %v", err)
	}
}

// snapshotOptions parses ?pixels=1&lowres=N.
func snapshotOptions(r *http.Request) (status.SnapshotOptions, error) {
	var o status.SnapshotOptions
	q := r.URL.Query()
	if v := q.Get("pixels"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return o, fmt.Errorf("invalid 'pixels' parameter")
		}
		o.Pixels = on
	}
	if v := q.Get("lowres"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, fmt.Errorf("invalid 'lowres' parameter")
		}
		o.LowRes = n
	}
	return o, nil
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	o, err := snapshotOptions(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.tracker.Snapshot(o)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.tracker.History())
}

type calibrationResponse struct {
	RunID  string                    `json:"run_id,omitempty"`
	Record plunger.CalibrationRecord `json:"record"`
}

// calibrate runs a calibration pass for ?duration= and blocks until it ends.
func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	d := s.DefaultCalibration
	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 || parsed > s.MaxCalibration {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'duration' parameter")
			return
		}
		d = parsed
	}

	rec, runID, err := RunCalibration(r.Context(), s.tracker, s.store, s.clock, d)
	switch {
	case errors.Is(err, status.ErrNotCalibratable):
		s.writeJSONError(w, http.StatusNotImplemented, err.Error())
		return
	case errors.Is(err, status.ErrCalibrating):
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, calibrationResponse{RunID: runID, Record: rec})
}

// RunCalibration runs one pass starting from the stored record (or the
// default) and persists the result when store is set.
func RunCalibration(ctx context.Context, tracker *status.Tracker, store CalibrationStore, clock timeutil.Clock, d time.Duration) (plunger.CalibrationRecord, string, error) {
	rec := plunger.DefaultCalibration()
	if store != nil {
		if saved, err := store.LoadCalibration(tracker.Kind()); err == nil {
			rec = saved
		}
	}
	if err := tracker.Calibrate(ctx, clock, d, &rec); err != nil {
		return rec, "", err
	}
	if store == nil {
		return rec, "", nil
	}
	id, err := store.SaveCalibration(tracker.Kind(), rec, clock.Now())
	if err != nil {
		return rec, "", err
	}
	return rec, id, nil
}
