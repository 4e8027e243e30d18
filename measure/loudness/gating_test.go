package loudness

import (
	"math"
	"testing"
)

func newGatingPool(blocks ...gatingBlock) *gatingPool {
	p := &gatingPool{}
	for _, b := range blocks {
		p.add(b)
	}
	return p
}

// evaluateDialogueGate must additionally require the relative gate (Γ_rel)
// on top of the speech-probability filter, not replace it: a loud,
// non-dialogue block must be excluded, and a quiet, dialogue-classified
// block must also be excluded once it falls below Γ_rel.
func TestEvaluateGating_Dialogue_RequiresRelativeGateAndSpeech(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.GateMode = GateDialogue
	cfg.SpeechThreshold = 0.5

	pool := newGatingPool(
		gatingBlock{weightedMeanSq: 1.0, hasSpeechProb: true, speechProb: 0.9},  // loud, dialogue: should survive
		gatingBlock{weightedMeanSq: 1.0, hasSpeechProb: true, speechProb: 0.1},  // loud, not dialogue: excluded
		gatingBlock{weightedMeanSq: 0.01, hasSpeechProb: true, speechProb: 0.9}, // dialogue but below Γ_rel: excluded
	)

	res := evaluateGating(pool, cfg)

	if res.BelowFloor {
		t.Fatalf("BelowFloor = true, want false (one block should survive)")
	}
	if res.BlockCount != 3 {
		t.Errorf("BlockCount = %d, want 3", res.BlockCount)
	}
	if res.GatedCount != 1 {
		t.Errorf("GatedCount = %d, want 1 (only the loud dialogue block survives)", res.GatedCount)
	}

	const want = -0.691 // toLUFS(1.0)
	if diff := math.Abs(res.LKFS - want); diff > 1e-9 {
		t.Errorf("LKFS = %v, want %v", res.LKFS, want)
	}
}

// All-loud, all-dialogue content must behave exactly like the plain
// relative gate: the speech filter is an additional constraint, never a
// looser one.
func TestEvaluateGating_Dialogue_MatchesRelativeGateWhenAllSpeech(t *testing.T) {
	blocks := func() []gatingBlock {
		return []gatingBlock{
			{weightedMeanSq: 1.0, hasSpeechProb: true, speechProb: 0.9},
			{weightedMeanSq: 1.0, hasSpeechProb: true, speechProb: 0.9},
			{weightedMeanSq: 1.0, hasSpeechProb: true, speechProb: 0.9},
		}
	}

	relCfg := DefaultEngineConfig()
	relCfg.GateMode = GateNone
	relRes := evaluateGating(newGatingPool(blocks()...), relCfg)

	diCfg := DefaultEngineConfig()
	diCfg.GateMode = GateDialogue
	diCfg.SpeechThreshold = 0.5
	diRes := evaluateGating(newGatingPool(blocks()...), diCfg)

	if diRes.GatedCount != relRes.GatedCount {
		t.Errorf("GatedCount = %d, want %d (same as relative gate when every block is dialogue)", diRes.GatedCount, relRes.GatedCount)
	}
	if diff := math.Abs(diRes.LKFS - relRes.LKFS); diff > 1e-9 {
		t.Errorf("LKFS = %v, want %v (same as relative gate)", diRes.LKFS, relRes.LKFS)
	}
}

// Invariant 8: raising the absolute-style gate threshold can only shrink or
// hold the surviving block set, never grow it. GateLevel's LevelGateDB is
// the caller-configurable analogue of Γ_abs exercised here, since
// DefaultAbsoluteGateLUFS itself is a fixed package constant.
func TestEvaluateGating_LevelGate_MonotonicityWithRisingThreshold(t *testing.T) {
	blocks := func() []gatingBlock {
		return []gatingBlock{
			{weightedMeanSq: 1e-5},
			{weightedMeanSq: 1e-3},
			{weightedMeanSq: 1e-1},
			{weightedMeanSq: 1},
			{weightedMeanSq: 10},
		}
	}

	run := func(levelGateDB float64) gatingResult {
		cfg := DefaultEngineConfig()
		cfg.GateMode = GateLevel
		cfg.LevelGateDB = levelGateDB
		return evaluateGating(newGatingPool(blocks()...), cfg)
	}

	low := run(-40)
	mid := run(-5)
	high := run(20)

	if !(low.GatedCount >= mid.GatedCount && mid.GatedCount >= high.GatedCount) {
		t.Errorf("GatedCount not monotonically non-increasing: low=%d mid=%d high=%d",
			low.GatedCount, mid.GatedCount, high.GatedCount)
	}
	if low.GatedCount != 4 {
		t.Errorf("low.GatedCount = %d, want 4", low.GatedCount)
	}
	if mid.GatedCount != 2 {
		t.Errorf("mid.GatedCount = %d, want 2", mid.GatedCount)
	}
	if high.GatedCount != 0 {
		t.Errorf("high.GatedCount = %d, want 0", high.GatedCount)
	}
	if !high.BelowFloor || !math.IsInf(high.LKFS, -1) {
		t.Errorf("high gate should report BelowFloor with -Inf LKFS, got %+v", high)
	}
}

// GateLevel on its own: a fixed threshold above every block's level must
// gate the whole pool out, distinct from the relative gate which is always
// relative to the pool's own mean.
func TestEvaluateGating_LevelGate_AllBelowThreshold(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.GateMode = GateLevel
	cfg.LevelGateDB = 0

	pool := newGatingPool(
		gatingBlock{weightedMeanSq: 0.1},
		gatingBlock{weightedMeanSq: 0.2},
	)

	res := evaluateGating(pool, cfg)
	if !res.BelowFloor {
		t.Errorf("BelowFloor = false, want true when every block is under LevelGateDB")
	}
}
