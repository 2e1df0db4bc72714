// Package audio handles audio capture and format conversion.
// It implements the capture buffer that hands device frames to a single
// consumer, the chunk streamer built on top of it, PCM sample conversion and
// FFT resampling, and WAV encoding for recorded segments.
package audio
