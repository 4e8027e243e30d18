package truepeak

import (
	"math"
	"testing"
)

func TestMeter_SineFullScale_PeaksNearUnity(t *testing.T) {
	m, err := NewMeter(4)
	if err != nil {
		t.Fatalf("NewMeter: %v", err)
	}

	sr := 48000.0
	block := make([]float64, 2048)
	for i := range block {
		block[i] = math.Sin(2 * math.Pi * 1000 * float64(i) / sr)
	}

	m.Process(block)

	if m.PeakAbs() < 0.9 || m.PeakAbs() > 1.2 {
		t.Fatalf("peak = %v, want close to 1.0", m.PeakAbs())
	}
}

func TestMeter_Silence_ZeroPeak(t *testing.T) {
	m, err := NewMeter(4)
	if err != nil {
		t.Fatalf("NewMeter: %v", err)
	}

	block := make([]float64, 1024)
	m.Process(block)

	if m.PeakAbs() != 0 {
		t.Fatalf("peak = %v, want 0", m.PeakAbs())
	}

	if !math.IsInf(m.PeakDB(), -1) {
		t.Fatalf("PeakDB = %v, want -Inf for silence", m.PeakDB())
	}
}

func TestMeter_InvalidFactorDefaultsToOne(t *testing.T) {
	m, err := NewMeter(0)
	if err != nil {
		t.Fatalf("NewMeter: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil meter")
	}
}
