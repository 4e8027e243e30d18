package loudness

import (
	"math"

	"github.com/cwbudde/leqm-core/dsp/filter/biquad"
	"github.com/cwbudde/leqm-core/dsp/filter/design"
)

const (
	kWeightingShelfFreq = 1500.0
	kWeightingShelfGain = 4.0
	kWeightingHpfFreq   = 38.0

	// gatingBlockSeconds and gatingHopSeconds are the BS.1770 400ms/100ms
	// gating block and hop; a 100ms hop gives the standard 75% overlap.
	gatingBlockSeconds = 0.4
	gatingHopSeconds   = 0.1
)

// kWeightingBank applies the BS.1770 K-weighting cascade (a high-shelf at
// 1.5kHz followed by a highpass at 38Hz) to each channel independently and
// accumulates 400ms mean-square blocks on a 100ms hop, each weighted by a
// per-channel gain before being summed into a single block value.
//
// This is the per-channel filter and windowing core of the gating path
// (C7/C8): a channel-weighted sliding accumulator, not a standalone meter.
type kWeightingBank struct {
	sampleRate float64
	channels   int
	gains      []float64

	shelf []*biquad.Section
	hpf   []*biquad.Section

	blockSamples int
	hopSamples   int

	history    [][]float64
	writeIdx   int
	runningSum []float64

	samplesSinceHop int
}

func newKWeightingBank(sampleRate float64, channels int, gains []float64) *kWeightingBank {
	q := 1.0 / math.Sqrt2

	shelfCoeffs := design.HighShelf(kWeightingShelfFreq, kWeightingShelfGain, q, sampleRate)
	hpfCoeffs := design.Highpass(kWeightingHpfFreq, q, sampleRate)

	b := &kWeightingBank{
		sampleRate: sampleRate,
		channels:   channels,
		gains:      gains,
		shelf:      make([]*biquad.Section, channels),
		hpf:        make([]*biquad.Section, channels),
	}

	for i := 0; i < channels; i++ {
		b.shelf[i] = biquad.NewSection(shelfCoeffs)
		b.hpf[i] = biquad.NewSection(hpfCoeffs)
	}

	b.blockSamples = int(math.Round(gatingBlockSeconds * sampleRate))
	b.hopSamples = int(math.Round(gatingHopSeconds * sampleRate))
	if b.hopSamples < 1 {
		b.hopSamples = 1
	}

	b.history = make([][]float64, channels)
	for i := range b.history {
		b.history[i] = make([]float64, b.blockSamples)
	}
	b.runningSum = make([]float64, channels)

	return b
}

// processFrame filters one multi-channel frame and reports whether a new
// gating block boundary was reached. When it returns true, weightedMeanSq
// and unweightedMeanSq hold that block's channel-weighted mean-square
// values (K-weighted and plain, respectively).
func (b *kWeightingBank) processFrame(frame []float64) (boundary bool, weightedMeanSq, unweightedMeanSq float64) {
	for i := 0; i < b.channels; i++ {
		filtered := b.shelf[i].ProcessSample(frame[i])
		filtered = b.hpf[i].ProcessSample(filtered)

		sq := filtered * filtered
		old := b.history[i][b.writeIdx]
		b.history[i][b.writeIdx] = sq

		b.runningSum[i] += sq - old
		if b.runningSum[i] < 0 {
			b.runningSum[i] = 0
		}
	}

	b.writeIdx = (b.writeIdx + 1) % b.blockSamples
	b.samplesSinceHop++

	if b.samplesSinceHop < b.hopSamples {
		return false, 0, 0
	}
	b.samplesSinceHop = 0

	var unweighted float64
	for i := 0; i < b.channels; i++ {
		meanSq := b.runningSum[i] / float64(b.blockSamples)
		unweighted += meanSq
		weightedMeanSq += b.gains[i] * meanSq
	}

	return true, weightedMeanSq, unweighted
}

// toLUFS converts a channel-weighted mean square to LUFS, with an effective
// floor for non-positive input.
func toLUFS(meanSquare float64) float64 {
	if meanSquare <= 0 {
		return -120.0
	}
	return -0.691 + 10.0*math.Log10(meanSquare)
}
