// Package vad segments captured audio into voiced utterances.
//
// Each frame is classified as speech or non-speech and kept in a fixed-size
// ring of recent decisions. While silent, the segmenter switches to voiced once
// the ring holds enough speech frames, seeding the new segment with the ring's
// contents so the leading edge of the utterance is kept. While voiced, it
// switches back once the ring holds enough non-speech frames, then emits the
// segment followed by a boundary marker.
package vad
