package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/plunger.sense/internal/monitoring"
	"github.com/banshee-data/plunger.sense/internal/plunger"
)

// AttachDebugRoutes mounts the sensor diagnostics under /debug/plunger.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("plunger", "Plunger sensor status (JSON, ?pixels=1&lowres=N)", http.HandlerFunc(s.showSnapshot))
	debug.Handle("plunger/pixels.png", "Last image sensor frame", http.HandlerFunc(s.servePixelsPNG))
	debug.Handle("plunger/history", "Recent plunger positions", http.HandlerFunc(s.serveHistoryChart))
	debug.Handle("plunger/tail", "Live plunger readings (server-sent events)", http.HandlerFunc(s.serveTail))
}

// PixelPlot plots one frame of pixel brightness.
func PixelPlot(pix []byte, title string) (*plot.Plot, error) {
	pts := make(plotter.XYs, len(pix))
	for i, v := range pix {
		pts[i].X = float64(i)
		pts[i].Y = float64(v)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Pixel"
	p.Y.Label.Text = "Brightness"
	p.Y.Min = 0
	p.Y.Max = 255

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("pixel line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

// WritePNG renders p as a PNG image.
func WritePNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) servePixelsPNG(w http.ResponseWriter, r *http.Request) {
	src, ok := s.tracker.Sensor().(plunger.FrameSource)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "sensor has no image")
		return
	}
	pix, t, ok := src.LastFrame(nil)
	if !ok {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no frame captured yet")
		return
	}
	p, err := PixelPlot(pix, fmt.Sprintf("%s t=%dµs", s.tracker.Kind(), t))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	img, err := WritePNG(p, 10*vg.Inch, 4*vg.Inch)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img)
}

func (s *Server) serveHistoryChart(w http.ResponseWriter, r *http.Request) {
	hist := s.tracker.History()
	x := make([]string, len(hist))
	y := make([]opts.LineData, len(hist))
	for i, rd := range hist {
		if i == 0 {
			x[i] = "0"
		} else {
			x[i] = fmt.Sprintf("%.1f", float64(plunger.Elapsed(hist[0], rd))/1000)
		}
		y[i] = opts.LineData{Value: rd.Pos}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Plunger History", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Plunger Position", Subtitle: fmt.Sprintf("sensor=%s readings=%d", s.tracker.Kind(), len(hist))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "ms", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: plunger.NativeMax, Name: "position"}),
	)
	line.SetXAxis(x).AddSeries("position", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// serveTail streams readings as server-sent events until the client leaves.
func (s *Server) serveTail(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	id, ch := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case rd, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: {\"pos\":%d,\"t\":%d}\n\n", rd.Pos, rd.T); err != nil {
				monitoring.Debugf("api: tail client gone: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
