package sim

import (
	"math/rand"
	"sync"
)

// Shadow renders a linear sensor image of the plunger's shadow.
type Shadow struct {
	Model *PlungerModel
	// LeadingDummies and TrailingDummies are filled with the dark level.
	LeadingDummies  int
	TrailingDummies int
	// Reverse puts the lit end at the last pixel.
	Reverse bool
	// Inverted renders 255-level, as the TCD1103 outputs.
	Inverted bool
	Bright   byte
	Dark     byte
	// Noise is the peak amplitude of uniform pixel noise.
	Noise int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewShadow returns a renderer with typical levels and light noise.
func NewShadow(model *PlungerModel) *Shadow {
	return &Shadow{Model: model, Bright: 200, Dark: 24, Noise: 3}
}

// Fill renders the current model position into dst.
func (s *Shadow) Fill(dst []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}

	img := dst[s.LeadingDummies : len(dst)-s.TrailingDummies]
	n := len(img)
	p := s.Model.Position()
	if p < 0 {
		p = 0
	}
	lit := int(p * float64(n))
	for i := range dst {
		dst[i] = s.level(s.Dark)
	}
	for i := 0; i < n; i++ {
		j := i
		if s.Reverse {
			j = n - 1 - i
		}
		if i < lit {
			img[j] = s.level(s.Bright)
		}
	}
}

func (s *Shadow) level(base byte) byte {
	v := int(base)
	if s.Noise > 0 {
		v += s.rng.Intn(2*s.Noise+1) - s.Noise
	}
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	if s.Inverted {
		v = 255 - v
	}
	return byte(v)
}
