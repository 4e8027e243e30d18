// Command leqm-nrt measures ISO 21727 Leq(M) cinema-audio loudness from a
// WAV file, emitting a JSON measurement report and (optionally) a
// per-block time-series logfile.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/cwbudde/leqm-core/dsp/filter/mweight"
	"github.com/cwbudde/leqm-core/internal/buildinfo"
	"github.com/cwbudde/leqm-core/internal/wavreader"
	"github.com/cwbudde/leqm-core/measure/loudness"
)

// CLI mirrors the external interface's flag table; field names map to
// flags by kebab-casing (Convpoints -> --convpoints).
type CLI struct {
	Input string `arg:"" name:"input" help:"Input WAV file" type:"existingfile"`

	Convpoints  int       `help:"Use FIR convolution with N points instead of IIR (0 = IIR)" default:"0"`
	Numcpus     int       `help:"Worker count" default:"0"`
	Chconfcal   []float64 `help:"Per-channel calibration gain in dB"`
	Leqnw       bool      `help:"Also emit unweighted Leq"`
	Logleqm     bool      `help:"Emit per-block Leq(M) series"`
	Logleqm10   bool      `help:"Emit 10-minute sliding series + Allen metric"`
	Longperiod  float64   `help:"Long-window duration in minutes" default:"10"`
	Buffersize  float64   `help:"Block size in ms" default:"850"`
	Threshold   float64   `help:"Allen metric threshold in dB" default:"80"`
	Lkfs        bool      `help:"Enable BS.1770-4 LKFS with gating"`
	Dolbydi     bool      `help:"Enable dialogue-gated LKFS(DI) / Leq(M,DI)"`
	Chgateconf  int       `help:"Gating mode: 0=none 1=level 2=dialogue" default:"0"`
	Agsthreshold float64  `help:"Speech probability threshold" default:"0.33"`
	Levelgate   float64   `help:"Force level gating at DB" default:"0"`
	Truepeak    bool      `help:"Emit true-peak"`
	Oversampling int      `help:"Oversampling factor" default:"4"`
	Timing      bool      `help:"Emit execution timing"`

	Logfile string `help:"Write a two-column (seconds, dB) time-series logfile here" placeholder:"PATH"`
	Version kong.VersionFlag `help:"Show version and exit"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("leqm-nrt"),
		kong.Description("Measures ISO 21727 Leq(M) loudness from a WAV file"),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.Version()},
	)

	logger := log.New(os.Stderr)
	if cli.Timing {
		logger.SetLevel(log.DebugLevel)
	}

	code := run(cli, logger)
	os.Exit(code)
}

func run(cli *CLI, logger *log.Logger) int {
	src, err := wavreader.Open(cli.Input)
	if err != nil {
		emitError(logger, "DecoderFailure", err)
		return 2
	}
	defer src.Close()

	opts, err := buildEngineOptions(cli, src.Channels())
	if err != nil {
		emitError(logger, "InvalidArgument", err)
		return 1
	}

	engine := loudness.NewEngine(opts...)

	result, err := engine.Run(context.Background(), src)
	if err != nil {
		kind, code := classifyRunError(err)
		emitError(logger, kind, err)
		return code
	}

	result.Execution.BinaryPath = buildinfo.Path()
	result.Execution.BinaryVersion = buildinfo.Version()
	result.Metadata.File = cli.Input

	if cli.Logfile != "" {
		if err := writeSeriesLog(cli.Logfile, result); err != nil {
			logger.Warn("failed to write series logfile", "path", cli.Logfile, "err", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("failed to encode result", "err", err)
		return 3
	}

	if cli.Timing {
		logger.Info("processed",
			"frames", result.Metadata.Frames,
			"duration_s", result.Metadata.DurationSeconds,
			"execution_s", result.Execution.ExecutionSeconds,
			"speed_index", result.Execution.SpeedIndex,
		)
	}

	return 0
}

func buildEngineOptions(cli *CLI, channels int) ([]loudness.EngineOption, error) {
	opts := []loudness.EngineOption{
		loudness.WithWorkers(cli.Numcpus),
		loudness.WithBlockMS(cli.Buffersize),
		loudness.WithUnweighted(cli.Leqnw),
		loudness.WithSeries(cli.Logleqm),
		loudness.WithLongSeries(cli.Logleqm10),
		loudness.WithLongPeriodMinutes(cli.Longperiod),
		loudness.WithAllenThresholdDB(cli.Threshold),
		loudness.WithLKFS(cli.Lkfs),
		loudness.WithDialogueGated(cli.Dolbydi),
		loudness.WithSpeechThreshold(cli.Agsthreshold),
		loudness.WithLevelGateDB(cli.Levelgate),
		loudness.WithTruePeak(cli.Truepeak),
		loudness.WithOversample(cli.Oversampling),
	}

	switch cli.Chgateconf {
	case 0:
		opts = append(opts, loudness.WithGateMode(loudness.GateNone))
	case 1:
		opts = append(opts, loudness.WithGateMode(loudness.GateLevel))
	case 2:
		opts = append(opts, loudness.WithGateMode(loudness.GateDialogue))
	default:
		return nil, fmt.Errorf("invalid --chgateconf %d: want 0, 1, or 2", cli.Chgateconf)
	}

	if len(cli.Chconfcal) > 0 {
		if len(cli.Chconfcal) != channels {
			return nil, fmt.Errorf("--chconfcal has %d values, want %d (one per channel)", len(cli.Chconfcal), channels)
		}
		opts = append(opts, loudness.WithCalGainDB(cli.Chconfcal))
	}

	if cli.Convpoints > 0 {
		// The FIR M-weighting filter is a fixed 21-tap design (FIR21); any
		// positive --convpoints selects it rather than sizing the filter.
		opts = append(opts, loudness.WithMWeightMode(mweight.ModeFIR))
	}

	return opts, nil
}

func emitError(logger *log.Logger, kind string, err error) {
	rec := loudness.ErrorRecord{Kind: kind, Detail: err.Error()}
	logger.Error(kind, "detail", err)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		Error loudness.ErrorRecord `json:"error"`
	}{rec})
}

// classifyRunError maps a sentinel engine error to the report's error
// "kind" string and the process's exit code.
func classifyRunError(err error) (kind string, code int) {
	switch {
	case loudness.IsUnsupportedSampleRate(err):
		return "UnsupportedSampleRate", 1
	case loudness.IsChannelCountMismatch(err):
		return "ChannelCountMismatch", 1
	case loudness.IsInsufficientData(err):
		return "InsufficientData", 1
	case loudness.IsNumericFailure(err):
		return "NumericFailure", 3
	case loudness.IsCancelled(err):
		return "CancelledByUser", 0
	default:
		return "ProcessingError", 3
	}
}

func writeSeriesLog(path string, result *loudness.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	series := result.LeqMSeries
	if len(result.LeqM10Series) > 0 {
		series = result.LeqM10Series
	}

	for _, p := range series {
		if _, err := fmt.Fprintf(f, "%.3f\t%.4f\n", p.Seconds, p.DB); err != nil {
			return err
		}
	}

	return nil
}
