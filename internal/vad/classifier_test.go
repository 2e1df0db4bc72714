package vad

import (
	"errors"
	"math"
	"testing"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

func toneFrame(numSamples int, amplitude float64) []byte {
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*float64(i)/16))
	}
	return audio.SamplesToPCM16(samples)
}

func TestEnergyClassifier(t *testing.T) {
	classifier, err := NewEnergyClassifier(0.02, 320)
	if err != nil {
		t.Fatalf("NewEnergyClassifier failed: %v", err)
	}

	tests := []struct {
		name     string
		frame    []byte
		expected bool
	}{
		{"silence", make([]byte, 320), false},
		{"quiet noise", toneFrame(160, 100), false},
		{"speech level tone", toneFrame(160, 8000), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifier.IsSpeech(tt.frame, 16000)
			if err != nil {
				t.Fatalf("IsSpeech failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestEnergyClassifierRejectsMalformedFrames(t *testing.T) {
	sized, _ := NewEnergyClassifier(0.02, 320)
	anySize, _ := NewEnergyClassifier(0.02, 0)

	tests := []struct {
		name       string
		classifier *EnergyClassifier
		frame      []byte
	}{
		{"wrong size", sized, make([]byte, 318)},
		{"odd length", anySize, make([]byte, 33)},
		{"empty", anySize, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.classifier.IsSpeech(tt.frame, 16000)
			if !errors.Is(err, errkind.ErrMalformedFrame) {
				t.Errorf("Expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestNewEnergyClassifierValidation(t *testing.T) {
	if _, err := NewEnergyClassifier(1.5, 320); !errors.Is(err, errkind.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for threshold > 1, got %v", err)
	}
	if _, err := NewEnergyClassifier(0.1, 321); !errors.Is(err, errkind.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for odd frame size, got %v", err)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("Expected 0 for no samples, got %v", got)
	}

	// Constant half-scale signal
	samples := []int16{16384, -16384, 16384, -16384}
	if got := RMS(samples); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected 0.5, got %v", got)
	}
}

func TestResampleAdapter(t *testing.T) {
	if ResampleAdapter(16000, 16000) != nil {
		t.Error("Expected no adapter for matching rates")
	}

	adapter := ResampleAdapter(16000, 8000)
	out, err := adapter(toneFrame(320, 1000))
	if err != nil {
		t.Fatalf("Adapter failed: %v", err)
	}
	if len(out) != 320 {
		t.Errorf("Expected 160 samples (320 bytes), got %d bytes", len(out))
	}
}
