package loudness

import "math"

// SpeechClassifier estimates the probability that a gated block contains
// dialogue. Implementations receive the block's K-weighted mean square and
// its unweighted mean square and return a probability in [0, 1].
//
// This mirrors the "Dolby dialogue intelligence" gate named in the CLI
// surface: real implementations plug in an external speech model, but a
// usable default can be built from signal features alone.
type SpeechClassifier interface {
	SpeechProbability(weightedMeanSquare, unweightedMeanSquare float64) float64
}

// EnergyThresholdClassifier is a dependency-free SpeechClassifier. It
// estimates speech presence from the ratio between a block's K-weighted and
// unweighted energy: dialogue-heavy material concentrates energy in the
// K-weighting passband, so a ratio near 1 scores high and a ratio near 0
// (bass-heavy or near-silent material) scores low. This is a heuristic
// stand-in for an external classifier, not a perceptual model.
type EnergyThresholdClassifier struct {
	// Midpoint is the weighted/unweighted ratio mapped to p=0.5.
	Midpoint float64
	// Slope controls how sharply probability transitions around Midpoint.
	Slope float64
}

// NewEnergyThresholdClassifier returns a classifier with reasonable
// defaults for speech-band energy concentration.
func NewEnergyThresholdClassifier() *EnergyThresholdClassifier {
	return &EnergyThresholdClassifier{
		Midpoint: 0.45,
		Slope:    12.0,
	}
}

// SpeechProbability implements SpeechClassifier.
func (c *EnergyThresholdClassifier) SpeechProbability(weightedMeanSquare, unweightedMeanSquare float64) float64 {
	if unweightedMeanSquare <= 0 {
		return 0
	}

	ratio := weightedMeanSquare / unweightedMeanSquare
	if ratio > 1 {
		ratio = 1
	}

	midpoint := c.Midpoint
	slope := c.Slope
	if slope == 0 {
		slope = 12.0
	}

	return 1 / (1 + math.Exp(-slope*(ratio-midpoint)))
}
