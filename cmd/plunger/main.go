package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/plunger.sense/internal/api"
	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/db"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/status"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
	"github.com/banshee-data/plunger.sense/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the plunger JSON configuration")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "plunger.db", "Path to the SQLite database")
	simulate    = flag.Bool("sim", true, "Use the simulated hardware backend")
	simPeriod   = flag.Duration("sim-period", 4*time.Second, "Length of one simulated pull and release cycle")
	sensorType  = flag.String("sensor", "", "Override sensor_type from the configuration")
	calibrate   = flag.Duration("calibrate", 0, "Run a calibration pass of this length at startup")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("plunger %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := config.LoadPlungerConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sensorType != "" {
		cfg.SensorType = sensorType
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid sensor override: %v", err)
		}
	}
	kind := cfg.GetSensorType()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	micros := timeutil.NewMicroClock(clock)

	var res plunger.Resources
	stopDevices := func() {}
	if *simulate {
		model := sim.NewPlungerModel(clock, *simPeriod)
		res, stopDevices, err = simResources(ctx, cfg, micros, model)
	} else {
		res, err = hardwareResources(cfg, micros)
	}
	if err != nil {
		log.Fatalf("Failed to set up %s hardware: %v", kind, err)
	}
	defer stopDevices()

	sensor, err := plunger.New(cfg, res)
	if err != nil {
		log.Fatalf("Failed to create %s sensor: %v", kind, err)
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := restoreCalibration(database, kind, sensor); err != nil {
		log.Printf("Calibration not restored: %v", err)
	}
	if err := sensor.Init(); err != nil {
		log.Fatalf("Failed to initialise %s sensor: %v", kind, err)
	}
	defer plunger.Close(sensor)

	tracker := status.NewTracker(kind, sensor, cfg.GetHistoryLength())
	defer tracker.Close()

	sessionID, err := database.StartSession(kind, clock.Now())
	if err != nil {
		log.Printf("Failed to record session start: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		pollSensor(ctx, clock, tracker, cfg.GetPollInterval())
		log.Print("sensor poll loop terminated")
	}()

	if *calibrate > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, runID, err := api.RunCalibration(ctx, tracker, database, clock, *calibrate)
			switch {
			case errors.Is(err, status.ErrNotCalibratable):
				log.Printf("%s sensor has no calibration", kind)
			case err != nil:
				log.Printf("Calibration failed: %v", err)
			default:
				log.Printf("Calibration %s saved: zero=%d max=%d release=%dms", runID, rec.Zero, rec.Max, rec.TRelease)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv := api.NewServer(tracker, database, clock)
		mux := srv.ServeMux()
		srv.AttachDebugRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("Failed to attach admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Serving %s sensor on %s", kind, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			server.Close()
		}
	}()

	wg.Wait()

	if sessionID != "" {
		snap, err := tracker.Snapshot(status.SnapshotOptions{})
		if err == nil {
			err = database.FinishSession(sessionID, clock.Now(), snap.Reads, snap.Failures, snap.AvgScanTime)
		}
		if err != nil {
			log.Printf("Failed to record session end: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}

// restoreCalibration applies the newest stored record for kind, if any.
func restoreCalibration(database *db.DB, kind string, sensor plunger.Sensor) error {
	rec, err := database.LoadCalibration(kind)
	if errors.Is(err, db.ErrNoCalibration) {
		return nil
	}
	if err != nil {
		return err
	}
	if plunger.RestoreCalibration(sensor, &rec) {
		log.Printf("Restored %s calibration: zero=%d max=%d", kind, rec.Zero, rec.Max)
	}
	return nil
}

// pollSensor reads the sensor every interval until ctx is done.
func pollSensor(ctx context.Context, clock timeutil.Clock, tracker *status.Tracker, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			tracker.Poll()
		}
	}
}
