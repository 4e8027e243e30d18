package mweight

import (
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// FrequencyResponse returns the magnitude response in dB at freqHz for the
// given tabulated coefficients, computed by taking the FFT of the Direct
// Form I impulse response rather than evaluating the transfer function
// analytically. It exists as a cross-check that Table48k integrates to the
// expected reference point at 1 kHz.
func FrequencyResponse(c Coefficients, sampleRate float64, freqHz float64, fftSize int) (float64, error) {
	impulse := impulseResponse(c, fftSize)

	src := make([]complex128, fftSize)
	for i, v := range impulse {
		src[i] = complex(v, 0)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return 0, err
	}

	dst := make([]complex128, fftSize)
	if err := plan.Forward(dst, src); err != nil {
		return 0, err
	}

	bin := int(freqHz/sampleRate*float64(fftSize) + 0.5)
	if bin < 0 {
		bin = 0
	}
	if bin >= fftSize {
		bin = fftSize - 1
	}

	mag := cmplx.Abs(dst[bin])
	if mag <= 0 {
		return math.Inf(-1), nil
	}

	return 20 * math.Log10(mag), nil
}

// impulseResponse runs the Direct-Form-I recurrence on a unit impulse for n
// samples.
func impulseResponse(c Coefficients, n int) []float64 {
	var state channelState

	out := make([]float64, n)
	for i := range out {
		x := 0.0
		if i == 0 {
			x = 1.0
		}
		out[i] = state.process(c, x)
	}

	return out
}
