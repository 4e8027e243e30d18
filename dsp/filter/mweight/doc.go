// Package mweight implements the ISO 21727 M-weighting filter used to
// derive Leq(M) from PCM samples.
//
// The filter is a tabulated 6-tap Direct-Form-I IIR per sample rate, with
// an equivalent 21-tap FIR kernel and a linear-interpolation resampling
// fallback for sample rates that have no tabulated coefficients. Unlike
// the Direct-Form-II-Transposed sections in dsp/filter/biquad, a
// Direct-Form-I section keeps explicit x[n-k]/y[n-k] history, which the
// ISO recurrence is defined in terms of.
package mweight
