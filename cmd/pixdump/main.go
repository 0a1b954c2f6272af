// Command pixdump captures simulated image sensor frames with the plunger
// held at a fixed position, prints the detected positions and writes the last
// frame as a PNG plot.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/plunger.sense/internal/api"
	"github.com/banshee-data/plunger.sense/internal/config"
	"github.com/banshee-data/plunger.sense/internal/hw/sim"
	"github.com/banshee-data/plunger.sense/internal/imaging"
	"github.com/banshee-data/plunger.sense/internal/plunger"
	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

var (
	sensorType = flag.String("sensor", config.SensorTSL1410R, "Image sensor type (tsl1410r, tsl1412s, tcd1103)")
	position   = flag.Float64("pos", 0.5, "Plunger position as a fraction of full travel")
	frames     = flag.Int("frames", 4, "Number of frames to capture")
	noise      = flag.Int("noise", 3, "Peak pixel noise")
	reverse    = flag.Bool("reverse", false, "Light the far end of the sensor")
	out        = flag.String("out", "pixels.png", "Output PNG path (empty to skip)")
)

func main() {
	flag.Parse()

	profile, err := imaging.LookupProfile(*sensorType)
	if err != nil {
		log.Fatalf("Unknown sensor: %v", err)
	}

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	model := sim.NewPlungerModel(clock, 0)
	model.SetPosition(*position)
	shadow := sim.NewShadow(model)
	shadow.LeadingDummies = profile.LeadingDummies
	shadow.TrailingDummies = profile.TrailingDummies
	shadow.Inverted = profile.Inverted
	shadow.Reverse = *reverse
	shadow.Noise = *noise

	cfg := config.EmptyPlungerConfig()
	cfg.SensorType = sensorType
	xfer := sim.NewTransfer(clock, cfg.GetPixelClockHz(), shadow.Fill)
	s, err := plunger.New(cfg, plunger.Resources{
		Micros:     timeutil.NewMicroClock(clock),
		Transfer:   xfer,
		PixelClock: &sim.ClockGen{},
	})
	if err != nil {
		log.Fatalf("Failed to create sensor: %v", err)
	}
	if err := s.Init(); err != nil {
		log.Fatalf("Failed to start sensor: %v", err)
	}
	defer plunger.Close(s)
	ccd := s.(*plunger.CCD)

	scan := xfer.Duration(profile.Samples)
	for i := 0; i < *frames; i++ {
		clock.Advance(scan)
		r, ok := s.Read()
		if !ok {
			fmt.Printf("frame %d: no position\n", i)
			continue
		}
		fmt.Printf("frame %d: pos=%d (%.3f) t=%dus dir=%d\n",
			i, r.Pos, float64(r.Pos)/plunger.NativeMax, r.T, ccd.Direction())
	}
	st := ccd.Engine().Stats()
	fmt.Printf("scan: avg=%dus frames=%d handoffs=%d overruns=%d\n", st.Avg, st.Frames, st.Handoffs, st.Overruns)

	if *out == "" {
		return
	}
	pix, _, ok := ccd.LastFrame(nil)
	if !ok {
		log.Fatal("No frame captured")
	}
	p, err := api.PixelPlot(pix, fmt.Sprintf("%s at %.2f", profile.Name, *position))
	if err != nil {
		log.Fatalf("Failed to plot: %v", err)
	}
	png, err := api.WritePNG(p, 8*vg.Inch, 3*vg.Inch)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	if err := os.WriteFile(*out, png, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)
}
