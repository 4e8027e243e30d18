package loudness

import (
	"context"
	"errors"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/cwbudde/leqm-core/dsp/buffer"
	"github.com/cwbudde/leqm-core/dsp/filter/mweight"
)

// partitionMode selects how the worker pool splits the program across
// workers: per-channel when there are at least as many channels as
// workers (each worker owns one channel's filter state for the whole
// stream, processed concurrently block by block), or per-time-partition
// otherwise (each worker owns a contiguous span of frames across every
// channel, accepting a warm-up transient at each partition boundary).
//
// A contiguous time partition needs to know where its span starts before
// any block is read, which in turn needs the total frame count. Since the
// program Source is a strictly sequential reader, per-time-partition mode
// reads the whole stream into memory first; this is acceptable for an
// offline (non-real-time) measurement tool but means per-time-partition
// mode is skipped in favor of a single sequential pass when the frame
// count is unknown.
type partitionMode int

const (
	modeChannel partitionMode = iota
	modeTime
)

type partitionPlan struct {
	mode    partitionMode
	workers int
}

func planPartitions(cfg EngineConfig, frameCountKnown bool) partitionPlan {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	if cfg.Channels >= workers && workers > 1 {
		return partitionPlan{mode: modeChannel, workers: cfg.Channels}
	}

	if !frameCountKnown || workers < 2 {
		return partitionPlan{mode: modeTime, workers: 1}
	}

	return partitionPlan{mode: modeTime, workers: workers}
}

// blockCombiner merges per-channel contributions to a shared block index
// (a gating block or a Leq(M) series block) once every expected reporter
// has contributed, then the caller emits the finished block.
type blockCombiner struct {
	mu       sync.Mutex
	expected int
	pending  map[int64]*pendingBlock
}

type pendingBlock struct {
	weighted   float64
	unweighted float64
	n          int64
	reports    int
}

func newBlockCombiner(expected int) *blockCombiner {
	return &blockCombiner{expected: expected, pending: make(map[int64]*pendingBlock)}
}

func (c *blockCombiner) report(blockIndex int64, weighted, unweighted float64, n int64) (ready bool, w, u float64, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[blockIndex]
	if !ok {
		p = &pendingBlock{}
		c.pending[blockIndex] = p
	}

	p.weighted += weighted
	p.unweighted += unweighted
	p.n += n
	p.reports++

	if p.reports >= c.expected {
		delete(c.pending, blockIndex)
		return true, p.weighted, p.unweighted, p.n
	}

	return false, 0, 0, 0
}

// runState carries the shared accumulators every worker writes into.
type runState struct {
	cfg         EngineConfig
	energy      *globalEnergy
	gating      *gatingPool
	series      *seriesCollector
	gateCombo   *blockCombiner
	seriesCombo *blockCombiner
	classifier  SpeechClassifier
	truePeak    *truePeakState

	mu              sync.Mutex
	framesProcessed int64
	truncated       bool
}

func (rs *runState) addFrames(n int64) {
	rs.mu.Lock()
	rs.framesProcessed += n
	rs.mu.Unlock()
}

func (rs *runState) markTruncated() {
	rs.mu.Lock()
	rs.truncated = true
	rs.mu.Unlock()
}

// channelWorker owns one channel's M-weighting and K-weighting state
// across the whole stream (channel mode).
type channelWorker struct {
	ch      int
	calGain float64
	mweight *mweight.FilterBank
	kweight *kWeightingBank

	seriesBlockIdx int64
	csum           float64
	n              int64
	frameInBlock   int

	gateBlockIdx int64
}

func newChannelWorker(ch int, cfg EngineConfig) (*channelWorker, error) {
	fb, err := mweight.NewFilterBank(cfg.SampleRate, 1, mweight.WithMode(cfg.MWeightMode))
	if err != nil {
		return nil, err
	}

	gain := 1.0
	if ch < len(cfg.ChannelGains) {
		gain = cfg.ChannelGains[ch]
	}
	calGain := 1.0
	if ch < len(cfg.CalGainDB) {
		calGain = dbToLinear(cfg.CalGainDB[ch])
	}

	return &channelWorker{
		ch:      ch,
		calGain: calGain,
		mweight: fb,
		kweight: newKWeightingBank(float64(cfg.SampleRate), 1, []float64{gain}),
	}, nil
}

func (w *channelWorker) process(samples []float64, rs *runState, blockFrames int) {
	calibrated := make([]float64, len(samples))
	for i, s := range samples {
		calibrated[i] = s * w.calGain
	}

	if rs.truePeak != nil {
		rs.truePeak.process(w.ch, calibrated)
	}

	weighted := make([]float64, len(calibrated))
	copy(weighted, calibrated)
	_ = w.mweight.ProcessBlock(0, weighted)

	rs.energy.commit(w.ch, weighted, calibrated)

	if rs.cfg.EmitSeries || rs.cfg.EmitLongSeries {
		w.accumulateSeries(weighted, rs, blockFrames)
	}

	if rs.cfg.LKFS {
		w.accumulateGating(calibrated, rs)
	}
}

func (w *channelWorker) accumulateSeries(weighted []float64, rs *runState, blockFrames int) {
	for i := range weighted {
		w.csum += weighted[i] * weighted[i]
		w.n++
		w.frameInBlock++

		if w.frameInBlock >= blockFrames {
			idx := w.seriesBlockIdx
			ready, wsum, _, n := rs.seriesCombo.report(idx, w.csum, 0, w.n)
			if ready {
				rs.series.add(seriesEntry{index: idx, leqM: blockLeqM(wsum, n)})
			}
			w.csum, w.n, w.frameInBlock = 0, 0, 0
			w.seriesBlockIdx++
		}
	}
}

func (w *channelWorker) accumulateGating(raw []float64, rs *runState) {
	for i := 0; i < len(raw); i++ {
		boundary, weightedMeanSq, unweightedMeanSq := w.kweight.processFrame(raw[i : i+1])
		if !boundary {
			continue
		}

		idx := w.gateBlockIdx
		w.gateBlockIdx++

		ready, wv, uv, _ := rs.gateCombo.report(idx, weightedMeanSq, unweightedMeanSq, 0)
		if ready {
			rs.gating.add(finalizeGatingBlock(wv, uv, rs))
		}
	}
}

func finalizeGatingBlock(weighted, unweighted float64, rs *runState) gatingBlock {
	b := gatingBlock{weightedMeanSq: weighted, unweightedMeanSq: unweighted}
	if rs.classifier != nil {
		b.speechProb = rs.classifier.SpeechProbability(weighted, unweighted)
		b.hasSpeechProb = true
	}
	return b
}

// timeWorker owns a contiguous frame range across every channel.
type timeWorker struct {
	channels int
	mweight  *mweight.FilterBank
	kweight  *kWeightingBank
	calGains []float64

	blockIdx   int64
	frameInBlk int
	csum       []float64
	n          int64
}

func newTimeWorker(cfg EngineConfig, startBlockIdx int64) (*timeWorker, error) {
	fb, err := mweight.NewFilterBank(cfg.SampleRate, cfg.Channels, mweight.WithMode(cfg.MWeightMode))
	if err != nil {
		return nil, err
	}

	calGains := make([]float64, cfg.Channels)
	for i := range calGains {
		calGains[i] = 1.0
		if i < len(cfg.CalGainDB) {
			calGains[i] = dbToLinear(cfg.CalGainDB[i])
		}
	}

	return &timeWorker{
		channels: cfg.Channels,
		mweight:  fb,
		kweight:  newKWeightingBank(float64(cfg.SampleRate), cfg.Channels, cfg.ChannelGains),
		calGains: calGains,
		csum:     make([]float64, cfg.Channels),
		blockIdx: startBlockIdx,
	}, nil
}

// process handles one interleaved span (frames*channels samples) owned
// entirely by this worker.
func (w *timeWorker) process(block []float64, rs *runState, blockFrames int) {
	calibrated := make([]float64, len(block))
	frames := len(block) / w.channels
	for f := 0; f < frames; f++ {
		for ch := 0; ch < w.channels; ch++ {
			idx := f*w.channels + ch
			calibrated[idx] = block[idx] * w.calGains[ch]
		}
	}

	for ch := 0; ch < w.channels; ch++ {
		weightedCh := extractChannel(calibrated, ch, w.channels)
		rawCh := extractChannel(calibrated, ch, w.channels)

		if rs.truePeak != nil {
			rs.truePeak.process(ch, rawCh)
		}

		_ = w.mweight.ProcessBlock(ch, weightedCh)
		rs.energy.commit(ch, weightedCh, rawCh)

		for i := range weightedCh {
			w.csum[ch] += weightedCh[i] * weightedCh[i]
		}
	}

	if rs.cfg.EmitSeries || rs.cfg.EmitLongSeries {
		w.n += int64(frames)
		w.frameInBlk += frames

		for w.frameInBlk >= blockFrames {
			var total float64
			for _, c := range w.csum {
				total += c
			}

			rs.series.add(seriesEntry{index: w.blockIdx, leqM: blockLeqM(total, w.n*int64(w.channels))})

			for i := range w.csum {
				w.csum[i] = 0
			}
			w.n = 0
			w.frameInBlk -= blockFrames
			w.blockIdx++
		}
	}

	if rs.cfg.LKFS {
		for f := 0; f < frames; f++ {
			frame := calibrated[f*w.channels : (f+1)*w.channels]
			boundary, weightedMeanSq, unweightedMeanSq := w.kweight.processFrame(frame)
			if boundary {
				rs.gating.add(finalizeGatingBlock(weightedMeanSq, unweightedMeanSq, rs))
			}
		}
	}
}

func extractChannel(interleaved []float64, ch, channels int) []float64 {
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for f := 0; f < frames; f++ {
		out[f] = interleaved[f*channels+ch]
	}
	return out
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// runScheduler drives the worker pool over src, committing energy/gating/
// series contributions as blocks complete.
func runScheduler(ctx context.Context, src Source, rs *runState) error {
	cfg := rs.cfg

	blockFrames := int(cfg.BlockMS/1000.0*float64(cfg.SampleRate) + 0.5)
	if blockFrames < 1 {
		blockFrames = 1
	}

	_, known := src.FrameCount()
	plan := planPartitions(cfg, known)

	if plan.mode == modeChannel {
		return runChannelMode(ctx, src, cfg, rs, plan, blockFrames)
	}

	if plan.workers <= 1 {
		return runTimeModeSequential(ctx, src, cfg, rs, blockFrames)
	}

	return runTimeModeParallel(ctx, src, cfg, rs, plan, blockFrames)
}

func runChannelMode(ctx context.Context, src Source, cfg EngineConfig, rs *runState, plan partitionPlan, blockFrames int) error {
	workers := make([]*channelWorker, cfg.Channels)
	for i := range workers {
		w, err := newChannelWorker(i, cfg)
		if err != nil {
			return err
		}
		workers[i] = w
	}
	rs.seriesCombo = newBlockCombiner(cfg.Channels)
	rs.gateCombo = newBlockCombiner(cfg.Channels)

	pool := buffer.NewPool()
	buf := pool.Get(blockFrames * cfg.Channels)
	defer pool.Put(buf)

	for {
		if ctx.Err() != nil {
			rs.markTruncated()
			return nil
		}

		samples := buf.Samples()
		frames, err := src.NextBlock(samples)
		n := frames * cfg.Channels
		if n > 0 {
			rs.addFrames(int64(frames))

			var wg sync.WaitGroup
			wg.Add(len(workers))
			for ch, w := range workers {
				chSamples := extractChannel(samples[:n], ch, cfg.Channels)
				go func(w *channelWorker, data []float64) {
					defer wg.Done()
					w.process(data, rs, blockFrames)
				}(w, chSamples)
			}
			wg.Wait()
		}

		if err != nil {
			return errIfEOF(err)
		}
		if n == 0 {
			return nil
		}
	}
}

func runTimeModeSequential(ctx context.Context, src Source, cfg EngineConfig, rs *runState, blockFrames int) error {
	w, err := newTimeWorker(cfg, 0)
	if err != nil {
		return err
	}

	pool := buffer.NewPool()
	buf := pool.Get(blockFrames * cfg.Channels)
	defer pool.Put(buf)

	for {
		if ctx.Err() != nil {
			rs.markTruncated()
			return nil
		}

		samples := buf.Samples()
		frames, err := src.NextBlock(samples)
		n := frames * cfg.Channels
		if n > 0 {
			rs.addFrames(int64(frames))
			w.process(samples[:n], rs, blockFrames)
		}

		if err != nil {
			return errIfEOF(err)
		}
		if n == 0 {
			return nil
		}
	}
}

// runTimeModeParallel reads the whole program into memory (bounded by the
// reported frame count) and splits it into contiguous, blockFrames-aligned
// partitions processed concurrently by one timeWorker each.
func runTimeModeParallel(ctx context.Context, src Source, cfg EngineConfig, rs *runState, plan partitionPlan, blockFrames int) error {
	frameCount, _ := src.FrameCount()
	if frameCount <= 0 {
		return runTimeModeSequential(ctx, src, cfg, rs, blockFrames)
	}

	whole := make([]float64, frameCount*int64(cfg.Channels))
	total, err := readFull(src, whole)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	whole = whole[:total*int64(cfg.Channels)]
	totalFrames := total

	blocksTotal := (totalFrames + int64(blockFrames) - 1) / int64(blockFrames)
	blocksPerPartition := (blocksTotal + int64(plan.workers) - 1) / int64(plan.workers)
	if blocksPerPartition < 1 {
		blocksPerPartition = 1
	}

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	for p := 0; p < plan.workers; p++ {
		startBlock := int64(p) * blocksPerPartition
		endBlock := startBlock + blocksPerPartition
		if endBlock > blocksTotal {
			endBlock = blocksTotal
		}
		if startBlock >= endBlock {
			continue
		}

		startFrame := startBlock * int64(blockFrames)
		endFrame := endBlock * int64(blockFrames)
		if endFrame > totalFrames {
			endFrame = totalFrames
		}

		span := whole[startFrame*int64(cfg.Channels) : endFrame*int64(cfg.Channels)]

		wg.Add(1)
		go func(span []float64, startBlock int64) {
			defer wg.Done()

			if ctx.Err() != nil {
				rs.markTruncated()
				return
			}

			w, err := newTimeWorker(cfg, startBlock)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}

			rs.addFrames(int64(len(span)) / int64(cfg.Channels))
			w.process(span, rs, blockFrames)
		}(span, startBlock)
	}

	wg.Wait()

	return firstErr
}

func readFull(src Source, dst []float64) (frames int64, err error) {
	channels := src.Channels()
	if channels == 0 {
		channels = 1
	}

	offset := 0
	for offset < len(dst) {
		n, readErr := src.NextBlock(dst[offset:])
		offset += n * channels
		if readErr != nil {
			return int64(offset / channels), readErr
		}
		if n == 0 {
			break
		}
	}

	return int64(offset / channels), nil
}

func errIfEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
