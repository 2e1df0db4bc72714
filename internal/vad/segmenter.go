package vad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
)

// State represents the segmenter's hysteresis state
type State int32

const (
	StateSilent State = iota
	StateVoiced
)

// String returns string representation of the state
func (s State) String() string {
	switch s {
	case StateSilent:
		return "silent"
	case StateVoiced:
		return "voiced"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Item is one element produced by the segmenter: either the concatenated
// audio of a voiced segment or a boundary marking the end of an utterance.
type Item struct {
	Audio    []byte
	Boundary bool
}

// ChunkSource yields captured audio chunks; audio.Streamer satisfies it.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Config contains segmenter configuration
type Config struct {
	PaddingFrames  int     // ring capacity N
	Ratio          float64 // activation ratio r, in (0, 1)
	SampleRate     int     // capture sample rate
	ClassifierRate int     // rate passed to the classifier; 0 = SampleRate
	FrameBytes     int     // classifier frame size in bytes; 0 = one frame per chunk
	FlushOnEnd     bool    // emit a trailing voiced segment when the source ends
	Adapter        FrameAdapter
}

// Validate checks the segmenter configuration
func (c Config) Validate() error {
	if c.PaddingFrames <= 0 {
		return fmt.Errorf("padding frames must be positive, got %d: %w", c.PaddingFrames, errkind.ErrConfiguration)
	}
	if !(c.Ratio > 0 && c.Ratio < 1) {
		return fmt.Errorf("activation ratio must be in (0, 1), got %f: %w", c.Ratio, errkind.ErrConfiguration)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d: %w", c.SampleRate, errkind.ErrConfiguration)
	}
	if c.ClassifierRate < 0 {
		return fmt.Errorf("classifier rate must not be negative, got %d: %w", c.ClassifierRate, errkind.ErrConfiguration)
	}
	if c.FrameBytes < 0 || c.FrameBytes%2 != 0 {
		return fmt.Errorf("frame size must be a non-negative even byte count, got %d: %w", c.FrameBytes, errkind.ErrConfiguration)
	}
	return nil
}

// Threshold returns the number of qualifying frames that triggers a state
// change. It is derived from the configured capacity, not the ring's
// occupancy, so the first transition needs a full threshold's worth of frames.
// A transition always needs at least one qualifying frame.
func (c Config) Threshold() int {
	return max(1, int(math.Ceil(c.Ratio*float64(c.PaddingFrames)-1e-9)))
}

// Segmenter splits captured audio into voiced segments with ring-buffer
// hysteresis. It is not safe for concurrent use, except GetStats.
type Segmenter struct {
	config     Config
	threshold  int
	classifier Classifier
	source     ChunkSource
	logger     *slog.Logger
	metrics    *metrics.Metrics

	ring      *Ring
	state     atomic.Int32
	segment   [][]byte
	remainder []byte

	pending []Item
	err     error // terminal error, sticky

	framesProcessed atomic.Uint64
	speechFrames    atomic.Uint64
	segmentsEmitted atomic.Uint64
	droppedOnEnd    atomic.Uint64
}

// SegmenterStats represents segmenter statistics
type SegmenterStats struct {
	State           string  `json:"state"`
	FramesProcessed uint64  `json:"frames_processed"`
	SpeechFrames    uint64  `json:"speech_frames"`
	SpeechRatio     float64 `json:"speech_percentage"`
	SegmentsEmitted uint64  `json:"segments_emitted"`
	DroppedOnEnd    uint64  `json:"segments_dropped_on_end"`
}

// NewSegmenter creates a segmenter reading chunks from source. source may be
// nil when frames are fed directly through Process or Feed.
func NewSegmenter(source ChunkSource, cfg Config, classifier Classifier, logger *slog.Logger, m *metrics.Metrics) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required: %w", errkind.ErrConfiguration)
	}
	if cfg.ClassifierRate == 0 {
		cfg.ClassifierRate = cfg.SampleRate
	}

	return &Segmenter{
		config:     cfg,
		threshold:  cfg.Threshold(),
		classifier: classifier,
		source:     source,
		logger:     logger.With("component", "segmenter"),
		metrics:    m,
		ring:       NewRing(cfg.PaddingFrames),
	}, nil
}

// State returns the current hysteresis state
func (s *Segmenter) State() State {
	return State(s.state.Load())
}

// Process runs one frame through the state machine and returns the items it
// completes: nothing, or a segment followed by a boundary.
func (s *Segmenter) Process(frame []byte) ([]Item, error) {
	classified := frame
	if s.config.Adapter != nil {
		adapted, err := s.config.Adapter(frame)
		if err != nil {
			return nil, wrapMalformed("adapt frame", err)
		}
		classified = adapted
	}

	speech, err := s.classifier.IsSpeech(classified, s.config.ClassifierRate)
	if err != nil {
		return nil, wrapMalformed("classify frame", err)
	}

	s.framesProcessed.Add(1)
	if speech {
		s.speechFrames.Add(1)
	}
	s.metrics.RecordVADFrame(speech)

	owned := make([]byte, len(frame))
	copy(owned, frame)

	switch s.State() {
	case StateSilent:
		s.ring.Push(owned, speech)
		if s.ring.Voiced() >= s.threshold {
			s.segment = s.ring.Frames()
			s.ring.Reset()
			s.state.Store(int32(StateVoiced))
			s.logger.Debug("Speech started", slog.Int("padding_frames", len(s.segment)))
		}
		return nil, nil

	case StateVoiced:
		s.segment = append(s.segment, owned)
		s.ring.Push(owned, speech)
		if s.ring.Unvoiced() >= s.threshold {
			items := s.endSegment()
			s.ring.Reset()
			s.state.Store(int32(StateSilent))
			return items, nil
		}
		return nil, nil
	}

	return nil, fmt.Errorf("invalid segmenter state %v", s.State())
}

// Feed splits chunk into classifier frames, carrying any remainder over to
// the next call, and processes each frame in order.
func (s *Segmenter) Feed(chunk []byte) ([]Item, error) {
	if s.config.FrameBytes == 0 {
		if len(chunk) == 0 {
			return nil, nil
		}
		return s.Process(chunk)
	}

	data := chunk
	if len(s.remainder) > 0 {
		data = append(s.remainder, chunk...)
		s.remainder = nil
	}

	var items []Item
	size := s.config.FrameBytes
	for len(data) >= size {
		out, err := s.Process(data[:size])
		if err != nil {
			return items, err
		}
		items = append(items, out...)
		data = data[size:]
	}

	if len(data) > 0 {
		s.remainder = append([]byte(nil), data...)
	}
	return items, nil
}

// Flush handles the end of the source. A segment still being collected is
// emitted with its boundary when FlushOnEnd is set, and dropped otherwise.
func (s *Segmenter) Flush() []Item {
	s.remainder = nil
	if s.State() != StateVoiced {
		return nil
	}

	var items []Item
	if s.config.FlushOnEnd {
		items = s.endSegment()
	} else {
		s.droppedOnEnd.Add(1)
		s.logger.Debug("Dropping unfinished segment at end of stream", slog.Int("frames", len(s.segment)))
		s.segment = nil
	}

	s.ring.Reset()
	s.state.Store(int32(StateSilent))
	return items
}

// Next returns the next item, pulling chunks from the source as needed. It
// returns io.EOF once the source has ended and every item was delivered. After
// any error the sequence is over and the same error is returned again.
func (s *Segmenter) Next(ctx context.Context) (Item, error) {
	for {
		if len(s.pending) > 0 {
			item := s.pending[0]
			s.pending[0] = Item{}
			s.pending = s.pending[1:]
			return item, nil
		}
		if s.err != nil {
			return Item{}, s.err
		}
		if s.source == nil {
			s.err = errors.New("segmenter has no chunk source")
			return Item{}, s.err
		}

		chunk, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.pending = s.Flush()
			s.err = io.EOF
			continue
		}
		if err != nil {
			s.err = err
			return Item{}, err
		}

		items, err := s.Feed(chunk)
		s.pending = append(s.pending, items...)
		if err != nil {
			s.err = err
		}
	}
}

// GetStats returns current segmenter statistics
func (s *Segmenter) GetStats() SegmenterStats {
	frames := s.framesProcessed.Load()
	speech := s.speechFrames.Load()

	ratio := float64(0)
	if frames > 0 {
		ratio = float64(speech) / float64(frames) * 100
	}

	return SegmenterStats{
		State:           s.State().String(),
		FramesProcessed: frames,
		SpeechFrames:    speech,
		SpeechRatio:     ratio,
		SegmentsEmitted: s.segmentsEmitted.Load(),
		DroppedOnEnd:    s.droppedOnEnd.Load(),
	}
}

// endSegment concatenates the collected frames into a segment item followed by
// a boundary, and discards the segment.
func (s *Segmenter) endSegment() []Item {
	size := 0
	for _, f := range s.segment {
		size += len(f)
	}
	audio := make([]byte, 0, size)
	for _, f := range s.segment {
		audio = append(audio, f...)
	}
	s.segment = nil

	duration := time.Duration(len(audio)) * time.Second / time.Duration(s.config.SampleRate*2)
	s.segmentsEmitted.Add(1)
	s.metrics.RecordSegment(duration.Seconds())
	s.logger.Debug("Speech segment completed",
		slog.Int("bytes", len(audio)),
		slog.Duration("duration", duration),
	)

	return []Item{{Audio: audio}, {Boundary: true}}
}

func wrapMalformed(op string, err error) error {
	if errors.Is(err, errkind.ErrMalformedFrame) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, errkind.ErrMalformedFrame, err)
}
