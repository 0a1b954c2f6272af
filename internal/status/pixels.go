package status

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrLowRes is returned for a downsampling factor other than 1, 2, 4 or 8.
var ErrLowRes = errors.New("status: low-res factor must be 1, 2, 4 or 8")

// PixelStats summarizes the brightness of one frame.
type PixelStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Brightness returns the brightness statistics of pix.
func Brightness(pix []byte) PixelStats {
	if len(pix) == 0 {
		return PixelStats{}
	}
	v := make([]float64, len(pix))
	for i, p := range pix {
		v[i] = float64(p)
	}
	var ps PixelStats
	ps.Mean, ps.StdDev = stat.PopMeanStdDev(v, nil)
	ps.Min = floats.Min(v)
	ps.Max = floats.Max(v)
	return ps
}

// Downsample averages each run of factor pixels. A trailing partial run is
// averaged over the pixels it has.
func Downsample(pix []byte, factor int) ([]byte, error) {
	switch factor {
	case 1:
		return pix, nil
	case 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %d", ErrLowRes, factor)
	}
	out := make([]byte, 0, (len(pix)+factor-1)/factor)
	for i := 0; i < len(pix); i += factor {
		end := min(i+factor, len(pix))
		sum := 0
		for _, p := range pix[i:end] {
			sum += int(p)
		}
		out = append(out, byte(sum/(end-i)))
	}
	return out, nil
}
