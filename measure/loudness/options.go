package loudness

import (
	"github.com/cwbudde/leqm-core/dsp/filter/mweight"
)

// GateMode selects how the gating engine (C8) discards blocks.
type GateMode int

const (
	// GateNone disables extra gating; the relative gate still applies
	// once the absolute gate has run.
	GateNone GateMode = iota
	// GateLevel replaces the relative threshold with a fixed user level.
	GateLevel
	// GateDialogue additionally requires a speech-classifier probability.
	GateDialogue
)

// ReferenceOffsetDB is the fixed ISO calibration offset added to all
// reported dB-SPL quantities.
const ReferenceOffsetDB = 108.010299957

// DefaultBlockMS is the default ungated block duration; 750ms is the
// Allen-recommended value, kept as the overall default per the design
// notes' resolution of the buffer_ms / Allen-recommendation inconsistency.
const DefaultBlockMS = 750.0

// DefaultAbsoluteGateLUFS is the BS.1770 absolute gate threshold.
const DefaultAbsoluteGateLUFS = -70.0

// DefaultRelativeGateOffsetLU is the BS.1770 relative gate offset.
const DefaultRelativeGateOffsetLU = -10.0

// EngineConfig configures a loudness Engine. Build one with
// DefaultEngineConfig and EngineOptions, or ApplyEngineOptions directly.
type EngineConfig struct {
	SampleRate int
	Channels   int

	// Workers is the worker-pool size W. Zero means "use runtime.NumCPU()".
	Workers int

	// BlockMS is the ungated block duration in milliseconds (--buffersize).
	BlockMS float64

	// CalGainDB is a per-channel calibration gain in dB (--chconfcal).
	// Length must equal Channels, or be empty for unity gain.
	CalGainDB []float64

	// ChannelGains is the BS.1770 channel weighting vector used by the
	// K-weighted / gated path (C3). Length must equal Channels, or be
	// empty to use DefaultChannelGains(Channels).
	ChannelGains []float64

	MWeightMode mweight.Mode

	EmitUnweighted    bool // --leqnw
	EmitSeries        bool // --logleqm
	EmitLongSeries    bool // --logleqm10
	LongPeriodMinutes float64
	AllenThresholdDB  float64

	LKFS            bool // --lkfs
	DialogueGated   bool // --dolbydi
	GateMode        GateMode
	SpeechThreshold float64 // --agsthreshold
	LevelGateDB     float64 // --levelgate

	EmitTruePeak bool
	Oversample   int // --oversampling

	SpeechClassifier SpeechClassifier
}

// EngineOption mutates an EngineConfig.
type EngineOption func(*EngineConfig)

// DefaultChannelGains returns the BS.1770 channel weighting vector for a
// standard layout: mono, stereo, or 5.1 ordered L, R, C, LFE, Ls, Rs.
func DefaultChannelGains(channels int) []float64 {
	switch channels {
	case 1:
		return []float64{1.0}
	case 2:
		return []float64{1.0, 1.0}
	case 6:
		return []float64{1.0, 1.0, 1.0, 0.0, 1.41, 1.41}
	default:
		gains := make([]float64, channels)
		for i := range gains {
			gains[i] = 1.0
		}
		return gains
	}
}

// DefaultEngineConfig returns sensible defaults for a stereo 48kHz program.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:        48000,
		Channels:          2,
		Workers:           0,
		BlockMS:           DefaultBlockMS,
		MWeightMode:       mweight.ModeTabulated,
		LongPeriodMinutes: 10,
		AllenThresholdDB:  80,
		SpeechThreshold:   0.33,
		Oversample:        4,
	}
}

// WithSampleRate sets the program sample rate.
func WithSampleRate(sampleRate int) EngineOption {
	return func(cfg *EngineConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithChannels sets the channel count.
func WithChannels(channels int) EngineOption {
	return func(cfg *EngineConfig) {
		if channels > 0 {
			cfg.Channels = channels
		}
	}
}

// WithWorkers sets the worker-pool size (0 = runtime.NumCPU()).
func WithWorkers(workers int) EngineOption {
	return func(cfg *EngineConfig) {
		if workers >= 0 {
			cfg.Workers = workers
		}
	}
}

// WithBlockMS sets the ungated block duration in milliseconds.
func WithBlockMS(ms float64) EngineOption {
	return func(cfg *EngineConfig) {
		if ms > 0 {
			cfg.BlockMS = ms
		}
	}
}

// WithCalGainDB sets per-channel calibration gain in dB.
func WithCalGainDB(gainsDB []float64) EngineOption {
	return func(cfg *EngineConfig) { cfg.CalGainDB = gainsDB }
}

// WithChannelGains sets the BS.1770 channel weighting vector.
func WithChannelGains(gains []float64) EngineOption {
	return func(cfg *EngineConfig) { cfg.ChannelGains = gains }
}

// WithMWeightMode selects the M-weighting implementation mode.
func WithMWeightMode(mode mweight.Mode) EngineOption {
	return func(cfg *EngineConfig) { cfg.MWeightMode = mode }
}

// WithUnweighted enables the unweighted Leq auxiliary metric.
func WithUnweighted(enabled bool) EngineOption {
	return func(cfg *EngineConfig) { cfg.EmitUnweighted = enabled }
}

// WithSeries enables the per-block Leq(M) time series.
func WithSeries(enabled bool) EngineOption {
	return func(cfg *EngineConfig) { cfg.EmitSeries = enabled }
}

// WithLongSeries enables the 10-minute sliding series and Allen metric.
func WithLongSeries(enabled bool) EngineOption {
	return func(cfg *EngineConfig) { cfg.EmitLongSeries = enabled }
}

// WithLongPeriodMinutes sets the long-window duration in minutes.
func WithLongPeriodMinutes(minutes float64) EngineOption {
	return func(cfg *EngineConfig) {
		if minutes > 0 {
			cfg.LongPeriodMinutes = minutes
		}
	}
}

// WithAllenThresholdDB sets the Allen metric threshold in dB.
func WithAllenThresholdDB(db float64) EngineOption {
	return func(cfg *EngineConfig) { cfg.AllenThresholdDB = db }
}

// WithLKFS enables BS.1770-4 gated LKFS measurement.
func WithLKFS(enabled bool) EngineOption {
	return func(cfg *EngineConfig) { cfg.LKFS = enabled }
}

// WithDialogueGated enables dialogue-gated LKFS(DI) / Leq(M,DI).
func WithDialogueGated(enabled bool) EngineOption {
	return func(cfg *EngineConfig) {
		cfg.DialogueGated = enabled
		if enabled {
			cfg.GateMode = GateDialogue
			cfg.LKFS = true
		}
	}
}

// WithGateMode sets the gating mode (--chgateconf).
func WithGateMode(mode GateMode) EngineOption {
	return func(cfg *EngineConfig) { cfg.GateMode = mode }
}

// WithSpeechThreshold sets the dialogue-gate speech-probability threshold.
func WithSpeechThreshold(p float64) EngineOption {
	return func(cfg *EngineConfig) { cfg.SpeechThreshold = p }
}

// WithLevelGateDB forces level gating at the given threshold in dB. The
// threshold is compared with each gating block's K-weighted loudness in
// LUFS; the blocks' Leq(M) is not used.
func WithLevelGateDB(db float64) EngineOption {
	return func(cfg *EngineConfig) {
		cfg.GateMode = GateLevel
		cfg.LevelGateDB = db
	}
}

// WithTruePeak enables the true-peak auxiliary metric.
func WithTruePeak(enabled bool) EngineOption {
	return func(cfg *EngineConfig) { cfg.EmitTruePeak = enabled }
}

// WithOversample sets the true-peak oversampling factor.
func WithOversample(factor int) EngineOption {
	return func(cfg *EngineConfig) {
		if factor > 0 {
			cfg.Oversample = factor
		}
	}
}

// WithSpeechClassifier installs the dialogue-gate speech classifier.
func WithSpeechClassifier(c SpeechClassifier) EngineOption {
	return func(cfg *EngineConfig) { cfg.SpeechClassifier = c }
}

// ApplyEngineOptions applies zero or more options to the default config.
func ApplyEngineOptions(opts ...EngineOption) EngineConfig {
	cfg := DefaultEngineConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if len(cfg.ChannelGains) == 0 {
		cfg.ChannelGains = DefaultChannelGains(cfg.Channels)
	}
	return cfg
}
