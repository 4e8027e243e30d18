// Package truepeak estimates inter-sample peak level by oversampling PCM
// input with a polyphase FIR resampler and tracking the maximum absolute
// value of the upsampled signal, per the --truepeak / --oversampling CLI
// options.
package truepeak
