package loudness

import (
	"sync"

	"github.com/cwbudde/leqm-core/internal/vecmath"
)

// channelEnergy accumulates the squared-sample sums a single worker
// partition contributes for one channel: csum is M-weighted, sum is
// unweighted (--leqnw), and peakAbs is the largest absolute sample seen.
type channelEnergy struct {
	csum    float64
	sum     float64
	n       int64
	peakAbs float64
}

func (c *channelEnergy) addWeightedBlock(weighted []float64) {
	if len(weighted) == 0 {
		return
	}

	squared := make([]float64, len(weighted))
	vecmath.MulBlock(squared, weighted, weighted)
	c.csum += vecmath.Sum(squared)
}

// addUnweightedBlock accumulates the unweighted energy sum and tracks
// peakAbs from the raw/calibrated block, not the M-weighted one: peak_abs
// is defined as the max |raw sample|, independent of whether --leqnw is set.
func (c *channelEnergy) addUnweightedBlock(raw []float64) {
	if len(raw) == 0 {
		return
	}

	squared := make([]float64, len(raw))
	vecmath.MulBlock(squared, raw, raw)
	c.sum += vecmath.Sum(squared)
	c.n += int64(len(raw))

	if peak := vecmath.MaxAbs(raw); peak > c.peakAbs {
		c.peakAbs = peak
	}
}

// globalEnergy merges per-partition channelEnergy contributions under a
// mutex, one commit per processed block (not batched at end-of-stream), so
// partial results remain correct if the run is cancelled mid-stream.
type globalEnergy struct {
	mu       sync.Mutex
	channels []channelEnergy
}

func newGlobalEnergy(channels int) *globalEnergy {
	return &globalEnergy{channels: make([]channelEnergy, channels)}
}

// commit merges one block's per-channel contribution for channel ch.
func (g *globalEnergy) commit(ch int, weighted, raw []float64) {
	var local channelEnergy
	local.addWeightedBlock(weighted)
	local.addUnweightedBlock(raw)

	g.mu.Lock()
	g.channels[ch].csum += local.csum
	g.channels[ch].sum += local.sum
	g.channels[ch].n += local.n
	if local.peakAbs > g.channels[ch].peakAbs {
		g.channels[ch].peakAbs = local.peakAbs
	}
	g.mu.Unlock()
}

func (g *globalEnergy) snapshot() []channelEnergy {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]channelEnergy, len(g.channels))
	copy(out, g.channels)

	return out
}
