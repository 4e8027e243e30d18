package loudness

import (
	"context"
	"time"
)

// Source is the external collaborator that decodes a program into
// interleaved float64 frames normalized to [-1, +1]. NextBlock fills buf
// (sized channels*frames) and returns the number of frames written; it
// returns io.EOF once (possibly with a final partial fill) when the
// program is exhausted.
type Source interface {
	SampleRate() int
	Channels() int
	// FrameCount reports the total frame count if known in advance, and
	// whether that count is reliable. Unknown counts fall back to
	// single-partition sequential processing (§5's per-time-partition mode
	// needs the total up front to size contiguous partitions).
	FrameCount() (int64, bool)
	NextBlock(buf []float64) (frames int, err error)
}

// Metadata mirrors the JSON output's top-level "metadata" object.
type Metadata struct {
	File                string  `json:"file,omitempty"`
	OriginalSampleRate  int     `json:"original_sample_rate"`
	EffectiveSampleRate int     `json:"effective_sample_rate"`
	Channels            int     `json:"channels"`
	Frames              int64   `json:"frames"`
	DurationSeconds     float64 `json:"duration_seconds"`
}

// Measurements mirrors the JSON output's "measurements" object.
type Measurements struct {
	LeqM               float64  `json:"leq_m"`
	LeqNoWeight         *float64 `json:"leq_no_weight,omitempty"`
	MeanPower          float64  `json:"mean_power"`
	MeanPowerWeighted  float64  `json:"mean_power_weighted"`
	LKFS               *float64 `json:"lkfs,omitempty"`
	TruePeakDB         *float64 `json:"true_peak_db,omitempty"`
	Allen              *float64 `json:"allen,omitempty"`
}

// Execution mirrors the JSON output's "execution" object.
type Execution struct {
	BinaryPath      string  `json:"binary_path,omitempty"`
	BinaryVersion   string  `json:"binary_version,omitempty"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	SpeedIndex      float64 `json:"speed_index"`
	MBps            float64 `json:"mbps"`
}

// ErrorRecord is the JSON shape for a structured, user-visible error.
type ErrorRecord struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// SeriesPoint is one (seconds, dB) sample of the Leq(M) time series.
type SeriesPoint struct {
	Seconds float64 `json:"seconds"`
	DB      float64 `json:"db"`
}

// Result is the complete measurement output for one program.
type Result struct {
	Metadata        Metadata        `json:"metadata"`
	Measurements    Measurements    `json:"measurements"`
	ReferenceOffset float64         `json:"reference_offset_db"`
	ChannelStats    []ChannelResult `json:"channel_stats"`
	Execution       Execution       `json:"execution"`
	ProcessingNotes []string        `json:"processing_notes,omitempty"`
	Truncated       bool            `json:"truncated,omitempty"`
	Error           *ErrorRecord    `json:"error,omitempty"`

	LeqMSeries     []SeriesPoint `json:"-"`
	LeqM10Series   []SeriesPoint `json:"-"`
}

// Engine runs the full ISO 21727 Leq(M) measurement pipeline against a
// Source.
type Engine struct {
	cfg EngineConfig
}

// NewEngine builds an Engine from zero or more EngineOptions.
func NewEngine(opts ...EngineOption) *Engine {
	return &Engine{cfg: ApplyEngineOptions(opts...)}
}

// Run measures src end to end, honoring ctx cancellation (a cancelled
// context produces a truncated, partial Result rather than an error).
func (e *Engine) Run(ctx context.Context, src Source) (*Result, error) {
	started := time.Now()

	cfg := e.cfg
	cfg.SampleRate = src.SampleRate()
	cfg.Channels = src.Channels()
	if len(cfg.ChannelGains) != cfg.Channels {
		cfg.ChannelGains = DefaultChannelGains(cfg.Channels)
	}

	rs := &runState{
		cfg:        cfg,
		energy:     newGlobalEnergy(cfg.Channels),
		gating:     &gatingPool{},
		series:     &seriesCollector{},
		classifier: cfg.SpeechClassifier,
	}
	if cfg.DialogueGated && rs.classifier == nil {
		rs.classifier = NewEnergyThresholdClassifier()
	}

	if cfg.EmitTruePeak {
		tp, err := newTruePeakState(cfg)
		if err != nil {
			return nil, err
		}
		rs.truePeak = tp
	}

	if err := runScheduler(ctx, src, rs); err != nil {
		return nil, err
	}

	return e.reduce(rs, started), nil
}

// reduce turns accumulated state into a final Result.
func (e *Engine) reduce(rs *runState, started time.Time) *Result {
	cfg := rs.cfg
	channels := rs.energy.snapshot()

	res := &Result{
		ReferenceOffset: ReferenceOffsetDB,
		Truncated:       rs.truncated,
	}

	res.Metadata = Metadata{
		OriginalSampleRate:  cfg.SampleRate,
		EffectiveSampleRate: cfg.SampleRate,
		Channels:            cfg.Channels,
		Frames:              rs.framesProcessed,
		DurationSeconds:     float64(rs.framesProcessed) / float64(cfg.SampleRate),
	}

	anySilent := false

	leqM, leqMSilent := clampSilence(combinedLeqM(channels))
	res.Measurements.LeqM = roundDigits(leqM, 4)
	anySilent = anySilent || leqMSilent

	res.Measurements.MeanPowerWeighted = meanPower(channels, true)
	res.Measurements.MeanPower = meanPower(channels, false)

	if cfg.EmitUnweighted {
		leqNW, leqNWSilent := clampSilence(combinedLeqNoWeight(channels))
		v := roundDigits(leqNW, 4)
		res.Measurements.LeqNoWeight = &v
		anySilent = anySilent || leqNWSilent
	}

	for i, c := range channels {
		cr, silent := reduceChannel(i, c, cfg.EmitUnweighted)
		cr.PeakDB = roundDigits(cr.PeakDB, 4)
		cr.AverageDB = roundDigits(cr.AverageDB, 4)
		res.ChannelStats = append(res.ChannelStats, cr)
		anySilent = anySilent || silent
	}

	if anySilent {
		res.ProcessingNotes = appendNoteOnce(res.ProcessingNotes, "silent")
	}

	if cfg.LKFS {
		g := evaluateGating(rs.gating, cfg)
		if g.BelowFloor {
			res.ProcessingNotes = append(res.ProcessingNotes, "below_floor")
		} else {
			v := roundDigits(g.LKFS, 4)
			res.Measurements.LKFS = &v
		}
	}

	if cfg.EmitSeries || cfg.EmitLongSeries {
		entries := rs.series.finalize()
		for _, ent := range entries {
			res.LeqMSeries = append(res.LeqMSeries, SeriesPoint{
				Seconds: float64(ent.index) * cfg.BlockMS / 1000.0,
				DB:      roundDigits(ent.leqM, 4),
			})
		}

		if cfg.EmitLongSeries {
			longVals := longWindowSeries(entries, cfg.BlockMS, cfg.LongPeriodMinutes)
			for i, v := range longVals {
				res.LeqM10Series = append(res.LeqM10Series, SeriesPoint{
					Seconds: float64(i) * cfg.BlockMS / 1000.0,
					DB:      roundDigits(v, 4),
				})
			}

			allen := roundDigits(allenMetric(longVals, cfg.BlockMS, cfg.AllenThresholdDB), 4)
			res.Measurements.Allen = &allen
		}
	}

	if rs.truePeak != nil {
		v := roundDigits(rs.truePeak.peakDB(), 4)
		res.Measurements.TruePeakDB = &v
	}

	if res.Metadata.Frames == 0 {
		res.ProcessingNotes = appendNoteOnce(res.ProcessingNotes, "silent")
	}

	elapsed := time.Since(started).Seconds()
	res.Execution = Execution{
		ExecutionSeconds: elapsed,
		SpeedIndex:       speedIndex(res.Metadata.DurationSeconds, elapsed),
	}

	return res
}

func meanPower(channels []channelEnergy, weighted bool) float64 {
	var sum float64
	var n int64
	for _, c := range channels {
		if weighted {
			sum += c.csum
		} else {
			sum += c.sum
		}
		n += c.n
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func speedIndex(durationSeconds, executionSeconds float64) float64 {
	if executionSeconds <= 0 {
		return 0
	}
	return durationSeconds / executionSeconds
}

