package mweight

import "errors"

// ErrUnsupportedSampleRate is returned when a sample rate has no tabulated
// coefficients and no fallback mode was configured to handle it.
var ErrUnsupportedSampleRate = errors.New("mweight: unsupported sample rate")

// ErrInvalidChannelCount is returned when a FilterBank is asked to process
// a channel index outside [0, channels).
var ErrInvalidChannelCount = errors.New("mweight: invalid channel count")
