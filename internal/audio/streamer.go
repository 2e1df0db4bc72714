package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
)

// StreamerConfig configures a Streamer
type StreamerConfig struct {
	SampleRate      int
	BitDepth        int
	ChunkFrames     int // frames per device buffer
	MaxQueuedFrames int // 0 = unbounded
}

// Validate checks the streamer configuration
func (c StreamerConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d: %w", c.SampleRate, errkind.ErrConfiguration)
	}
	if c.BitDepth != 16 {
		return fmt.Errorf("only 16-bit capture is supported, got %d: %w", c.BitDepth, errkind.ErrConfiguration)
	}
	if c.ChunkFrames <= 0 {
		return fmt.Errorf("chunk frames must be positive, got %d: %w", c.ChunkFrames, errkind.ErrConfiguration)
	}
	return nil
}

// Streamer exposes a capture device as a lazy sequence of audio chunks.
// A Streamer is not restartable: once Next returns an error the sequence
// is over.
type Streamer struct {
	driver Driver
	stream DeviceStream
	buffer *CaptureBuffer
	logger *slog.Logger

	mu        sync.Mutex
	deviceErr error
	closing   bool

	closeOnce sync.Once
	closeErr  error
}

// OpenStreamer opens a mono capture stream on driver, filling a new capture
// buffer. The caller must Close the returned Streamer.
func OpenStreamer(driver Driver, cfg StreamerConfig, logger *slog.Logger, m *metrics.Metrics) (*Streamer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Streamer{
		driver: driver,
		buffer: NewCaptureBuffer(cfg.MaxQueuedFrames, m),
		logger: logger.With("component", "streamer"),
	}

	params := DeviceParams{
		SampleRate:      cfg.SampleRate,
		Channels:        1,
		BitDepth:        cfg.BitDepth,
		FramesPerBuffer: cfg.ChunkFrames,
	}

	stream, err := driver.Open(params, s.buffer.Push, s.fail)
	if err != nil {
		s.buffer.Close()
		if termErr := driver.Terminate(); termErr != nil {
			err = errors.Join(err, termErr)
		}
		return nil, fmt.Errorf("failed to open capture stream: %w: %w", errkind.ErrDevice, err)
	}
	s.stream = stream

	s.logger.Debug("Capture stream opened",
		slog.Int("sample_rate", params.SampleRate),
		slog.Int("frames_per_buffer", params.FramesPerBuffer),
	)

	return s, nil
}

// fail is the driver's asynchronous end-of-source / failure notification
func (s *Streamer) fail(err error) {
	s.mu.Lock()
	if !s.closing && s.deviceErr == nil && err != nil && !errors.Is(err, io.EOF) {
		s.deviceErr = err
	}
	s.mu.Unlock()

	s.buffer.Close()
}

// Next blocks until captured audio is available and returns every frame
// queued since the previous call as one chunk. It returns io.EOF once the
// buffer has been closed and drained, or an errkind.ErrDevice error if the
// device failed.
func (s *Streamer) Next(ctx context.Context) ([]byte, error) {
	chunk, err := s.buffer.Pull(ctx)
	if errors.Is(err, io.EOF) {
		s.mu.Lock()
		deviceErr := s.deviceErr
		s.mu.Unlock()
		if deviceErr != nil {
			return nil, fmt.Errorf("capture device failed: %w: %w", errkind.ErrDevice, deviceErr)
		}
	}
	return chunk, err
}

// Interrupt ends the sequence without releasing the device: Next delivers
// whatever is still queued, then returns io.EOF.
func (s *Streamer) Interrupt() {
	s.buffer.Close()
}

// GetStats returns the capture buffer statistics
func (s *Streamer) GetStats() CaptureStats {
	return s.buffer.GetStats()
}

// Close stops and closes the device stream, closes the capture buffer and
// terminates the driver. It is safe to call more than once.
func (s *Streamer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		s.buffer.Close()
		if err := s.driver.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate driver: %w", err))
		}

		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("%w: %w", errkind.ErrDevice, errors.Join(errs...))
		}

		stats := s.buffer.GetStats()
		s.logger.Debug("Capture stream closed",
			slog.Uint64("frames_pushed", stats.FramesPushed),
			slog.Uint64("frames_dropped", stats.FramesDropped),
		)
	})
	return s.closeErr
}

// WithStreamer opens a Streamer, runs fn with it and always releases it.
func WithStreamer(driver Driver, cfg StreamerConfig, logger *slog.Logger, m *metrics.Metrics, fn func(*Streamer) error) error {
	s, err := OpenStreamer(driver, cfg, logger, m)
	if err != nil {
		return err
	}

	err = fn(s)
	if closeErr := s.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}
