package vad

import (
	"fmt"
	"math"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// Classifier decides whether a single frame contains speech.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(frame []byte, sampleRate int) (bool, error)

// IsSpeech calls f(frame, sampleRate)
func (f ClassifierFunc) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// FrameAdapter converts a captured frame into the representation the
// classifier expects. A nil FrameAdapter passes frames through unchanged.
type FrameAdapter func(frame []byte) ([]byte, error)

// ResampleAdapter returns a FrameAdapter that resamples 16-bit PCM frames
// from the capture rate to the classifier's rate.
func ResampleAdapter(sourceRate, targetRate int) FrameAdapter {
	if sourceRate == targetRate {
		return nil
	}
	return func(frame []byte) ([]byte, error) {
		return audio.ResamplePCM16(frame, sourceRate, targetRate)
	}
}

// EnergyClassifier flags a 16-bit PCM frame as speech when its normalized
// RMS energy reaches the configured threshold.
type EnergyClassifier struct {
	threshold  float64
	frameBytes int // 0 accepts any even length
}

// NewEnergyClassifier creates an energy classifier. threshold is the RMS
// level in [0, 1] relative to full scale.
func NewEnergyClassifier(threshold float64, frameBytes int) (*EnergyClassifier, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("energy threshold must be between 0 and 1, got %f: %w", threshold, errkind.ErrConfiguration)
	}
	if frameBytes < 0 || frameBytes%2 != 0 {
		return nil, fmt.Errorf("frame size must be a non-negative even byte count, got %d: %w", frameBytes, errkind.ErrConfiguration)
	}

	return &EnergyClassifier{
		threshold:  threshold,
		frameBytes: frameBytes,
	}, nil
}

// IsSpeech implements Classifier
func (c *EnergyClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if c.frameBytes > 0 && len(frame) != c.frameBytes {
		return false, fmt.Errorf("expected %d byte frame, got %d: %w", c.frameBytes, len(frame), errkind.ErrMalformedFrame)
	}
	if len(frame) == 0 {
		return false, fmt.Errorf("empty frame: %w", errkind.ErrMalformedFrame)
	}

	samples, err := audio.PCM16ToSamples(frame)
	if err != nil {
		return false, err
	}

	return RMS(samples) >= c.threshold, nil
}

// RMS returns the root-mean-square level of samples relative to full scale
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	normalized, err := audio.IntToFloat(samples, 16)
	if err != nil {
		return 0
	}

	var energy float64
	for _, s := range normalized {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy / float64(len(normalized)))
}
