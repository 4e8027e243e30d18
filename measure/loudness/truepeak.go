package loudness

import (
	"math"
	"sync"

	"github.com/cwbudde/leqm-core/measure/truepeak"
)

// truePeakState owns one true-peak meter per channel and reports the
// program-wide peak across all of them.
type truePeakState struct {
	mu     sync.Mutex
	meters []*truepeak.Meter
}

func newTruePeakState(cfg EngineConfig) (*truePeakState, error) {
	meters := make([]*truepeak.Meter, cfg.Channels)
	for i := range meters {
		m, err := truepeak.NewMeter(cfg.Oversample)
		if err != nil {
			return nil, err
		}
		meters[i] = m
	}
	return &truePeakState{meters: meters}, nil
}

func (s *truePeakState) process(ch int, block []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch < 0 || ch >= len(s.meters) {
		return
	}
	s.meters[ch].Process(block)
}

func (s *truePeakState) peakDB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var peak float64
	for _, m := range s.meters {
		if m.PeakAbs() > peak {
			peak = m.PeakAbs()
		}
	}

	return toTruePeakDB(peak)
}

func toTruePeakDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20*math.Log10(linear) + ReferenceOffsetDB
}
