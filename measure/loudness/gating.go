package loudness

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// gatingBlock is one candidate 400ms gating block: its channel-weighted
// K-weighted mean square, its unweighted mean square (for the speech
// classifier), and the dialogue probability assigned to it, if any.
type gatingBlock struct {
	weightedMeanSq   float64
	unweightedMeanSq float64
	speechProb       float64
	hasSpeechProb    bool
}

// gatingPool collects gating blocks from every worker partition under a
// mutex; blocks are evaluated only after the end-of-stream barrier, so
// arrival order across partitions does not matter.
type gatingPool struct {
	mu     sync.Mutex
	blocks []gatingBlock
}

func (p *gatingPool) add(b gatingBlock) {
	p.mu.Lock()
	p.blocks = append(p.blocks, b)
	p.mu.Unlock()
}

func (p *gatingPool) snapshot() []gatingBlock {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]gatingBlock, len(p.blocks))
	copy(out, p.blocks)

	return out
}

// gatingResult is the outcome of evaluating a gatingPool.
type gatingResult struct {
	LKFS        float64
	BelowFloor  bool
	BlockCount  int
	GatedCount  int
}

// evaluateGating applies the BS.1770 absolute and relative gates to the
// blocks in pool, optionally with a level gate in place of the relative gate
// or a dialogue gate on top of it.
func evaluateGating(pool *gatingPool, cfg EngineConfig) gatingResult {
	blocks := pool.snapshot()
	if len(blocks) == 0 {
		return gatingResult{LKFS: math.Inf(-1), BelowFloor: true}
	}

	var absGated []gatingBlock
	for _, b := range blocks {
		if toLUFS(b.weightedMeanSq) > DefaultAbsoluteGateLUFS {
			absGated = append(absGated, b)
		}
	}
	if len(absGated) == 0 {
		return gatingResult{LKFS: math.Inf(-1), BelowFloor: true, BlockCount: len(blocks)}
	}

	switch cfg.GateMode {
	case GateLevel:
		return evaluateLevelGate(blocks, absGated, cfg)
	case GateDialogue:
		return evaluateDialogueGate(blocks, absGated, cfg)
	default:
		return evaluateRelativeGate(blocks, absGated)
	}
}

func evaluateRelativeGate(all, absGated []gatingBlock) gatingResult {
	meanSqs := make([]float64, len(absGated))
	for i, b := range absGated {
		meanSqs[i] = b.weightedMeanSq
	}

	gammaRel := toLUFS(stat.Mean(meanSqs, nil)) + DefaultRelativeGateOffsetLU

	var sum float64
	var count int
	for _, b := range absGated {
		if toLUFS(b.weightedMeanSq) > gammaRel {
			sum += b.weightedMeanSq
			count++
		}
	}
	if count == 0 {
		return gatingResult{LKFS: math.Inf(-1), BelowFloor: true, BlockCount: len(all)}
	}

	return gatingResult{
		LKFS:       toLUFS(sum / float64(count)),
		BlockCount: len(all),
		GatedCount: count,
	}
}

func evaluateLevelGate(all, absGated []gatingBlock, cfg EngineConfig) gatingResult {
	var sum float64
	var count int
	for _, b := range absGated {
		if toLUFS(b.weightedMeanSq) > cfg.LevelGateDB {
			sum += b.weightedMeanSq
			count++
		}
	}
	if count == 0 {
		return gatingResult{LKFS: math.Inf(-1), BelowFloor: true, BlockCount: len(all)}
	}

	return gatingResult{
		LKFS:       toLUFS(sum / float64(count)),
		BlockCount: len(all),
		GatedCount: count,
	}
}

// evaluateDialogueGate additionally requires p_b >= SpeechThreshold on top
// of (not instead of) the relative gate: a block must both survive the
// normal BS.1770 relative-loudness threshold and be classified as dialogue
// to count toward Leq(M,DI)/LKFS(DI).
func evaluateDialogueGate(all, absGated []gatingBlock, cfg EngineConfig) gatingResult {
	meanSqs := make([]float64, len(absGated))
	for i, b := range absGated {
		meanSqs[i] = b.weightedMeanSq
	}
	gammaRel := toLUFS(stat.Mean(meanSqs, nil)) + DefaultRelativeGateOffsetLU

	var sum float64
	var count int
	for _, b := range absGated {
		if toLUFS(b.weightedMeanSq) <= gammaRel {
			continue
		}
		if !b.hasSpeechProb || b.speechProb < cfg.SpeechThreshold {
			continue
		}
		sum += b.weightedMeanSq
		count++
	}
	if count == 0 {
		return gatingResult{LKFS: math.Inf(-1), BelowFloor: true, BlockCount: len(all)}
	}

	return gatingResult{
		LKFS:       toLUFS(sum / float64(count)),
		BlockCount: len(all),
		GatedCount: count,
	}
}
