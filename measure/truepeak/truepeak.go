package truepeak

import (
	"math"

	"github.com/cwbudde/leqm-core/dsp/resample"
	"github.com/cwbudde/leqm-core/internal/vecmath"
)

// ReferenceOffsetDB is the ISO calibration offset applied to report true
// peak on the same dB-SPL scale as Leq(M).
const ReferenceOffsetDB = 108.010299957

// Meter tracks the true peak of one channel across successive blocks by
// oversampling each block and taking the maximum absolute sample.
type Meter struct {
	resampler *resample.Resampler
	peakAbs   float64
}

// NewMeter builds a true peak meter that oversamples by factor (4 is the
// conventional BS.1770 true-peak oversampling ratio).
func NewMeter(factor int) (*Meter, error) {
	if factor < 1 {
		factor = 1
	}

	r, err := resample.NewRational(factor, 1, resample.WithQuality(resample.QualityBest))
	if err != nil {
		return nil, err
	}

	return &Meter{resampler: r}, nil
}

// Process oversamples block and updates the running peak. It returns the
// oversampled signal's peak absolute value for this block alone.
func (m *Meter) Process(block []float64) float64 {
	up := m.resampler.Process(block)

	peak := vecmath.MaxAbs(up)
	if peak > m.peakAbs {
		m.peakAbs = peak
	}

	return peak
}

// PeakAbs returns the largest absolute oversampled sample seen so far.
func (m *Meter) PeakAbs() float64 {
	return m.peakAbs
}

// PeakDB returns the true peak in the ISO-calibrated dB-SPL scale. Silence
// (zero peak) reports as negative infinity.
func (m *Meter) PeakDB() float64 {
	return toDB(m.peakAbs)
}

func toDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20*math.Log10(linear) + ReferenceOffsetDB
}
