package transcription

import (
	"context"
	"fmt"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// Alternative is one recognition hypothesis
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is a recognition result. Its text and confidence are those of its
// first (most likely) alternative.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"is_final"`
}

// Top returns the first alternative, if any
func (r Result) Top() (Alternative, bool) {
	if len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// Response is one message from the recognition service. It may carry no
// results at all.
type Response struct {
	Results []Result `json:"results"`
}

// ResponseStream delivers responses in receipt order. Recv returns io.EOF
// once the service has closed the stream normally.
type ResponseStream interface {
	Recv() (*Response, error)
	Close() error
}

// Request is one element of the audio request sequence
type Request struct {
	Audio []byte
	// EndOfUtterance asks the service to finalize what it has heard so far
	EndOfUtterance bool
}

// RequestSource yields requests until it returns io.EOF
type RequestSource interface {
	Next(ctx context.Context) (Request, error)
}

// RequestSourceFunc adapts a function to the RequestSource interface
type RequestSourceFunc func(ctx context.Context) (Request, error)

// Next calls f(ctx)
func (f RequestSourceFunc) Next(ctx context.Context) (Request, error) {
	return f(ctx)
}

// RecognitionConfig describes the audio and the recognition options of a
// streaming session
type RecognitionConfig struct {
	SampleRate      int
	LanguageCode    string
	Model           string
	MaxAlternatives int
	Punctuation     bool
	Enhanced        bool
	InterimResults  bool
	Phrases         []string
}

// DefaultRecognitionConfig returns the session options used by the service:
// one alternative, automatic punctuation, enhanced model and interim results
func DefaultRecognitionConfig(sampleRate int, languageCode string) RecognitionConfig {
	return RecognitionConfig{
		SampleRate:      sampleRate,
		LanguageCode:    languageCode,
		MaxAlternatives: 1,
		Punctuation:     true,
		Enhanced:        true,
		InterimResults:  true,
	}
}

// Validate checks the recognition configuration
func (c RecognitionConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d: %w", c.SampleRate, errkind.ErrConfiguration)
	}
	if c.LanguageCode == "" {
		return fmt.Errorf("language code cannot be empty: %w", errkind.ErrConfiguration)
	}
	if c.MaxAlternatives < 0 {
		return fmt.Errorf("max alternatives must not be negative, got %d: %w", c.MaxAlternatives, errkind.ErrConfiguration)
	}
	return nil
}

// Recognizer is a streaming speech recognition service
type Recognizer interface {
	StreamingRecognize(ctx context.Context, cfg RecognitionConfig, requests RequestSource) (ResponseStream, error)
}
