package design

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/leqm-core/dsp/filter/biquad"
)

const tol = 1e-9

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestHighpass_ResponseShape(t *testing.T) {
	sr := 48000.0
	hp := Highpass(1000, 1/math.Sqrt2, sr)
	if !(mag(hp, 10000, sr) > mag(hp, 100, sr)) {
		t.Fatal("highpass shape check failed")
	}
	if !almostEqual(mag(hp, 1000, sr), 1/math.Sqrt2, 1e-3) {
		t.Fatalf("cutoff magnitude = %v, want ~0.707", mag(hp, 1000, sr))
	}
}

func TestHighShelf_TiltDirection(t *testing.T) {
	sr := 48000.0

	boost := HighShelf(1500, 6, 1/math.Sqrt2, sr)
	if !(mag(boost, 10000, sr) > mag(boost, 100, sr)) {
		t.Fatal("boosted high shelf should raise high frequencies relative to low")
	}

	cut := HighShelf(1500, -6, 1/math.Sqrt2, sr)
	if !(mag(cut, 10000, sr) < mag(cut, 100, sr)) {
		t.Fatal("cut high shelf should lower high frequencies relative to low")
	}
}

func TestHighShelf_ZeroGainIsFlat(t *testing.T) {
	sr := 48000.0
	flat := HighShelf(1500, 0, 1/math.Sqrt2, sr)
	for _, hz := range []float64{50, 500, 1500, 5000, 20000} {
		if !almostEqual(mag(flat, hz, sr), 1, 1e-6) {
			t.Fatalf("0 dB shelf at %v Hz = %v, want ~1", hz, mag(flat, hz, sr))
		}
	}
}

func TestDesigners_ValidateAcrossSampleRates(t *testing.T) {
	for _, sr := range []float64{44100, 48000, 96000, 192000} {
		for _, c := range []biquad.Coefficients{
			Highpass(38, 1/math.Sqrt2, sr),
			HighShelf(1500, 4, 1/math.Sqrt2, sr),
		} {
			assertFiniteCoefficients(t, c)
			assertStableSection(t, c)
		}
	}
}

func TestInvalidInputs(t *testing.T) {
	if got := Highpass(1000, 0.707, 0); got != (biquad.Coefficients{}) {
		t.Fatalf("expected zero coefficients for invalid sample rate, got %#v", got)
	}
	if got := Highpass(0, 0.707, 48000); got != (biquad.Coefficients{}) {
		t.Fatalf("expected zero coefficients for invalid frequency, got %#v", got)
	}
	if got := HighShelf(48000, 4, 0.707, 48000); got != (biquad.Coefficients{}) {
		t.Fatalf("expected zero coefficients at/above nyquist, got %#v", got)
	}

	_ = Highpass(1000, 0, 48000)  // q<=0 path uses defaultQ
	_ = HighShelf(1000, 3, 0, 48000)
}

func mag(c biquad.Coefficients, freq, sr float64) float64 {
	h := c.Response(freq, sr)
	return cmplx.Abs(h)
}

func assertFiniteCoefficients(t *testing.T, c biquad.Coefficients) {
	t.Helper()
	v := []float64{c.B0, c.B1, c.B2, c.A1, c.A2}
	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			t.Fatalf("invalid coefficient[%d]=%v", i, v[i])
		}
	}
}

func assertStableSection(t *testing.T, c biquad.Coefficients) {
	t.Helper()
	r1, r2 := sectionRoots(c)
	if cmplx.Abs(r1) >= 1+tol || cmplx.Abs(r2) >= 1+tol {
		t.Fatalf("unstable poles: |r1|=%v |r2|=%v coeff=%#v", cmplx.Abs(r1), cmplx.Abs(r2), c)
	}
}

func sectionRoots(c biquad.Coefficients) (complex128, complex128) {
	disc := complex(c.A1*c.A1-4*c.A2, 0)
	sqrtDisc := cmplx.Sqrt(disc)
	r1 := (-complex(c.A1, 0) + sqrtDisc) / 2
	r2 := (-complex(c.A1, 0) - sqrtDisc) / 2
	return r1, r2
}
