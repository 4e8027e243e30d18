package mweight_test

import (
	"fmt"
	"math"

	"github.com/cwbudde/leqm-core/dsp/filter/mweight"
)

func ExampleFilterBank_ProcessBlock() {
	fb, err := mweight.NewFilterBank(48000, 1)
	if err != nil {
		fmt.Println(err)
		return
	}

	sr := 48000.0
	block := make([]float64, 4800)
	for i := range block {
		block[i] = math.Sin(2 * math.Pi * 1000 * float64(i) / sr)
	}

	if err := fb.ProcessBlock(0, block); err != nil {
		fmt.Println(err)
		return
	}

	var peak float64
	for _, v := range block {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	fmt.Printf("peak after M-weighting: %.2f\n", peak)
	// Output:
	// peak after M-weighting: 0.50
}
