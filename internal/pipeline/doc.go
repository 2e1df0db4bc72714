// Package pipeline runs the capture and recognition loop.
//
// A cycle opens the capture device, optionally segments the audio into
// voiced utterances, streams it to the recognition service and hands the
// responses to the multiplexer. Run repeats cycles forever: a failed or
// finished cycle is torn down completely and a new one is started after a
// capped exponential delay.
package pipeline
