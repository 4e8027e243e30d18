package loudness

import (
	"errors"

	"github.com/cwbudde/leqm-core/dsp/filter/mweight"
)

// ErrUnsupportedSampleRate is returned when the engine's sample rate has no
// tabulated M-weighting coefficients and no fallback mode was configured.
// It is the M-weighting filter bank's own sentinel, which the engine returns
// wrapped.
var ErrUnsupportedSampleRate = mweight.ErrUnsupportedSampleRate

// ErrChannelCountMismatch names a channel-count mismatch between a Source
// and the engine. Engine.Run does not return it: the engine takes its
// channel count from the Source and does not check blocks against it.
var ErrChannelCountMismatch = errors.New("loudness: channel count mismatch")

// ErrInsufficientData names a program with too little data to measure.
// Engine.Run does not return it: a program with zero frames yields a Result
// with a "silent" processing note, and gating that leaves no block yields a
// "below_floor" note.
var ErrInsufficientData = errors.New("loudness: insufficient data")

// ErrNumericFailure names an accumulator that produced NaN or Inf.
// Engine.Run does not return it; the accumulators are not checked for NaN
// or Inf.
var ErrNumericFailure = errors.New("loudness: numeric failure")

// ErrCancelled names a cancelled run. Engine.Run does not return it: a
// cancelled context yields a partial Result with Truncated set.
var ErrCancelled = errors.New("loudness: cancelled")

// IsUnsupportedSampleRate reports whether err wraps ErrUnsupportedSampleRate.
func IsUnsupportedSampleRate(err error) bool { return errors.Is(err, ErrUnsupportedSampleRate) }

// IsChannelCountMismatch reports whether err wraps ErrChannelCountMismatch.
func IsChannelCountMismatch(err error) bool { return errors.Is(err, ErrChannelCountMismatch) }

// IsInsufficientData reports whether err wraps ErrInsufficientData.
func IsInsufficientData(err error) bool { return errors.Is(err, ErrInsufficientData) }

// IsNumericFailure reports whether err wraps ErrNumericFailure.
func IsNumericFailure(err error) bool { return errors.Is(err, ErrNumericFailure) }

// IsCancelled reports whether err wraps ErrCancelled.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
