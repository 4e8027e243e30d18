package mweight

import (
	"fmt"

	"github.com/cwbudde/leqm-core/dsp/filter/fir"
	"github.com/cwbudde/leqm-core/dsp/interp"
)

// Mode selects how a FilterBank handles its configured sample rate.
type Mode int

const (
	// ModeTabulated requires an exact tabulated coefficient match, except
	// for mandatoryRates (44100 Hz), which it serves via the same
	// resampled-interpolation path as ModeInterpolate. Any other
	// unmatched rate fails with ErrUnsupportedSampleRate.
	ModeTabulated Mode = iota

	// ModeInterpolate resamples to the nearest tabulated rate with
	// trivial linear interpolation, runs the tabulated IIR there, and
	// resamples the result back to the original block length.
	ModeInterpolate

	// ModeFIR replaces the IIR recurrence with 21-tap FIR convolution
	// against FIR21, regardless of sample rate.
	ModeFIR
)

// FilterConfig configures a FilterBank.
type FilterConfig struct {
	Mode Mode
}

// FilterOption mutates a FilterConfig.
type FilterOption func(*FilterConfig)

// WithMode selects the weighting mode.
func WithMode(m Mode) FilterOption {
	return func(c *FilterConfig) { c.Mode = m }
}

func defaultFilterConfig() FilterConfig {
	return FilterConfig{Mode: ModeTabulated}
}

// channelState is the Direct-Form-I history ring for one channel.
type channelState struct {
	xHistory [5]float64
	yHistory [5]float64
}

func (s *channelState) process(c Coefficients, x float64) float64 {
	y := c.B[0] * x
	for k := 1; k < 6; k++ {
		y += c.B[k]*s.xHistory[k-1] - c.A[k]*s.yHistory[k-1]
	}

	for k := 4; k > 0; k-- {
		s.xHistory[k] = s.xHistory[k-1]
		s.yHistory[k] = s.yHistory[k-1]
	}
	s.xHistory[0] = x
	s.yHistory[0] = y

	return y
}

// FilterBank applies M-weighting to a fixed number of channels, keeping
// independent Direct-Form-I (or FIR, or interpolated) state per channel.
type FilterBank struct {
	cfg        FilterConfig
	coeffs     Coefficients
	sampleRate int
	channels   int
	states     []channelState
	firFilters []*fir.Filter
	nearest    int // nearest tabulated rate, used by ModeInterpolate
}

// NewFilterBank allocates one FilterState per channel for sampleRate.
func NewFilterBank(sampleRate, channels int, opts ...FilterOption) (*FilterBank, error) {
	if channels <= 0 {
		return nil, ErrInvalidChannelCount
	}

	cfg := defaultFilterConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	fb := &FilterBank{
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   channels,
	}

	switch cfg.Mode {
	case ModeFIR:
		fb.coeffs = Table48k
		fb.firFilters = make([]*fir.Filter, channels)
		for ch := range fb.firFilters {
			fb.firFilters[ch] = fir.New(FIR21)
		}
	case ModeInterpolate:
		c, ok := lookup(sampleRate)
		if ok {
			fb.coeffs = c
			fb.states = make([]channelState, channels)
			break
		}
		fb.nearest = nearestTabulatedRate(sampleRate)
		if fb.nearest == 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedSampleRate, sampleRate)
		}
		fb.coeffs = tables[fb.nearest]
		fb.states = make([]channelState, channels)
	default: // ModeTabulated
		c, ok := lookup(sampleRate)
		if ok {
			fb.coeffs = c
			fb.states = make([]channelState, channels)
			break
		}
		if !mandatoryViaInterpolation(sampleRate) {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedSampleRate, sampleRate)
		}
		// 44100 Hz has no tabulated coefficients of its own (see tables.go),
		// but is a mandatory supported rate, so ModeTabulated falls back to
		// the same resampled-interpolation path ModeInterpolate uses rather
		// than failing a rate the spec requires to work out of the box.
		fb.nearest = nearestTabulatedRate(sampleRate)
		fb.coeffs = tables[fb.nearest]
		fb.states = make([]channelState, channels)
		fb.cfg.Mode = ModeInterpolate
	}

	return fb, nil
}

// Channels returns the number of channels this bank was built for.
func (fb *FilterBank) Channels() int {
	return fb.channels
}

// ProcessSample applies the Direct-Form-I recurrence (or FIR convolution in
// ModeFIR) to a single sample on channel ch. History shifts after the call.
//
// ModeInterpolate does not support per-sample processing; use ProcessBlock,
// since linear-interpolation resampling needs block context.
func (fb *FilterBank) ProcessSample(ch int, x float64) (float64, error) {
	if ch < 0 || ch >= fb.channels {
		return 0, ErrInvalidChannelCount
	}

	switch fb.cfg.Mode {
	case ModeFIR:
		return fb.firFilters[ch].ProcessSample(x), nil
	case ModeInterpolate:
		return 0, fmt.Errorf("mweight: ProcessSample unsupported in ModeInterpolate, use ProcessBlock")
	default:
		return fb.states[ch].process(fb.coeffs, x), nil
	}
}

// ProcessBlock applies weighting to block in place for channel ch.
func (fb *FilterBank) ProcessBlock(ch int, block []float64) error {
	if ch < 0 || ch >= fb.channels {
		return ErrInvalidChannelCount
	}

	switch fb.cfg.Mode {
	case ModeFIR:
		fb.firFilters[ch].ProcessBlock(block)
		return nil
	case ModeInterpolate:
		fb.processInterpolated(ch, block)
		return nil
	default:
		state := &fb.states[ch]
		for i, x := range block {
			block[i] = state.process(fb.coeffs, x)
		}
		return nil
	}
}

// processInterpolated resamples block to the nearest tabulated rate with
// linear interpolation, filters it there, and resamples the result back
// down to block's original length in place.
func (fb *FilterBank) processInterpolated(ch int, block []float64) {
	if len(block) == 0 {
		return
	}

	ratio := float64(fb.nearest) / float64(fb.sampleRate)
	upLen := int(float64(len(block))*ratio + 0.5)
	if upLen < 1 {
		upLen = 1
	}

	up := resampleLinear(block, upLen)

	state := &fb.states[ch]
	for i, x := range up {
		up[i] = state.process(fb.coeffs, x)
	}

	down := resampleLinear(up, len(block))
	copy(block, down)
}

var lin1 = interp.NewLagrangeInterpolator(1)

// resampleLinear resamples in to outLen samples with trivial linear
// interpolation (order-1 Lagrange).
func resampleLinear(in []float64, outLen int) []float64 {
	out := make([]float64, outLen)
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}

	step := float64(len(in)-1) / float64(maxInt(outLen-1, 1))
	for i := range out {
		pos := step * float64(i)
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = lin1.Interpolate(in[idx:idx+2], frac)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
