package mweight

// Coefficients holds a 6-tap Direct-Form-I IIR coefficient set.
// A[0] is always 1; B and A are indexed n=0..5.
type Coefficients struct {
	A [6]float64
	B [6]float64
}

// Table48k is the reference 48 kHz M-weighting coefficient set.
var Table48k = Coefficients{
	A: [6]float64{
		1.0,
		-1.6391291074367320,
		1.5160386192837869,
		-0.8555167646249104,
		0.2870466545317107,
		-0.0428951718612053,
	},
	B: [6]float64{
		0.31837346242469328,
		0.10800452155339044,
		-0.21106344349319428,
		-0.15438275853192485,
		-0.05130596901975942,
		-0.00518224535906041,
	},
}

// tables maps a tabulated sample rate to its coefficient set. Only 48000 Hz
// is tabulated directly; 44100 Hz is a mandatory supported rate but its
// published coefficients disagree across sources by a fraction of a dB at
// 1 kHz (see the open question in the loudness engine's design notes), so
// it is served by resampling to 48000 Hz instead of a second disputed table.
var tables = map[int]Coefficients{
	48000: Table48k,
}

// FIR21 is a 21-tap FIR approximation of Table48k, obtained by truncating
// Table48k's impulse response. It is the "FIR convolution" alternative
// named alongside the IIR recurrence.
var FIR21 = []float64{
	0.3183734624246933,
	0.62985973084912,
	0.33869151055293334,
	-0.2817414873258501,
	-0.5791185298670162,
	-0.4046874877431729,
	-0.09660587347093984,
	0.05512793193062551,
	0.04475178975002019,
	-0.0015472563136848805,
	-0.012847470986649841,
	-0.0003952709248539587,
	0.007024528964575633,
	0.0034858995278858255,
	-0.0016523249731757433,
	-0.002421163252248503,
	-0.0005146879569667306,
	0.0007140478469940877,
	0.0005031802926488618,
	-7.39607758876632e-05,
	-0.00022930887047067412,
}

// TabulatedRates lists sample rates with a dedicated Direct-Form-I table.
func TabulatedRates() []int {
	rates := make([]int, 0, len(tables))
	for rate := range tables {
		rates = append(rates, rate)
	}
	return rates
}

// lookup returns the coefficient set for sampleRate, if tabulated.
func lookup(sampleRate int) (Coefficients, bool) {
	c, ok := tables[sampleRate]
	return c, ok
}

// mandatoryRates lists sample rates the spec requires to work without a
// caller explicitly opting into interpolation, even though only 48000 Hz
// has a dedicated coefficient table.
var mandatoryRates = map[int]bool{
	44100: true,
}

// mandatoryViaInterpolation reports whether sampleRate is a mandatory rate
// that ModeTabulated should silently serve via resampled interpolation
// rather than ErrUnsupportedSampleRate.
func mandatoryViaInterpolation(sampleRate int) bool {
	return mandatoryRates[sampleRate]
}

// nearestTabulatedRate returns the tabulated rate closest to sampleRate.
func nearestTabulatedRate(sampleRate int) int {
	best := 0
	bestDist := -1
	for rate := range tables {
		dist := rate - sampleRate
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = rate
			bestDist = dist
		}
	}
	return best
}
