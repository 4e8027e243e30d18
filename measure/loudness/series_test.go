package loudness

import "testing"

// Scenario F (§8): a 30-minute program with one 5-minute window averaging
// 85dB against a 70dB (sub-threshold) remainder must produce an Allen index
// of 85*5/30 ≈ 14.17 — only reachable if each qualifying long-window value
// is weighted by its own block's duration-fraction-of-a-minute before
// summing, since the series reports once per block rather than once per
// minute.
func TestAllenMetric_WorkedExample(t *testing.T) {
	const blockMS = 750.0
	const totalMinutes = 30.0
	const loudMinutes = 5.0
	const loudDB = 85.0
	const quietDB = 70.0
	const thresholdDB = 80.0

	totalBlocks := int(totalMinutes * 60000.0 / blockMS)
	loudBlocks := int(loudMinutes * 60000.0 / blockMS)

	longSeries := make([]float64, totalBlocks)
	for i := range longSeries {
		if i < loudBlocks {
			longSeries[i] = loudDB
		} else {
			longSeries[i] = quietDB
		}
	}

	got := allenMetric(longSeries, blockMS, thresholdDB)

	const want = loudDB * loudMinutes / totalMinutes // 14.1666...
	if diff := got - want; diff < -0.01 || diff > 0.01 {
		t.Errorf("allenMetric = %v, want %v", got, want)
	}
}

func TestAllenMetric_NothingAboveThreshold(t *testing.T) {
	longSeries := make([]float64, 100)
	for i := range longSeries {
		longSeries[i] = 50.0
	}

	if got := allenMetric(longSeries, 750, 80); got != 0 {
		t.Errorf("allenMetric = %v, want 0", got)
	}
}

func TestAllenMetric_Empty(t *testing.T) {
	if got := allenMetric(nil, 750, 80); got != 0 {
		t.Errorf("allenMetric = %v, want 0", got)
	}
}
