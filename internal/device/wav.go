package device

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// WAVConfig configures a WAVDriver
type WAVConfig struct {
	Path string
	// Pace scales playback speed: 1 plays in real time, 2 twice as fast,
	// 0 delivers frames as fast as they are consumed.
	Pace float64
	// Loop restarts playback at the end of the file instead of ending the
	// capture stream.
	Loop bool
}

// WAVDriver plays a mono 16-bit WAV file as if it were being captured
type WAVDriver struct {
	config WAVConfig
	wav    *audio.WAV
	logger *slog.Logger

	framesDelivered atomic.Uint64
	loops           atomic.Uint64
}

// WAVStatistics represents playback statistics
type WAVStatistics struct {
	FramesDelivered uint64        `json:"frames_delivered"`
	Loops           uint64        `json:"loops"`
	Duration        time.Duration `json:"duration"`
	SampleRate      int           `json:"sample_rate"`
}

// NewWAVDriver loads the WAV file named by cfg.Path
func NewWAVDriver(cfg WAVConfig, logger *slog.Logger) (*WAVDriver, error) {
	if cfg.Pace < 0 {
		return nil, fmt.Errorf("pace must not be negative, got %f: %w", cfg.Pace, errkind.ErrConfiguration)
	}
	if cfg.Loop && cfg.Pace == 0 {
		return nil, fmt.Errorf("looped playback needs a positive pace: %w", errkind.ErrConfiguration)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV file: %w: %w", errkind.ErrDevice, err)
	}

	wav, err := audio.DecodeMonoPCM16(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w: %w", cfg.Path, errkind.ErrDevice, err)
	}

	logger = logger.With("component", "wav_driver")
	logger.Info("WAV source loaded",
		slog.String("path", cfg.Path),
		slog.Int("sample_rate", wav.SampleRate),
		slog.Duration("duration", wav.Duration()),
		slog.Bool("loop", cfg.Loop))

	return &WAVDriver{config: cfg, wav: wav, logger: logger}, nil
}

// Open starts playback. Audio recorded at a different sample rate is
// resampled to params.SampleRate.
func (d *WAVDriver) Open(params audio.DeviceParams, fill audio.FillFunc, fail func(error)) (audio.DeviceStream, error) {
	if params.Channels != 1 || params.BitDepth != 16 {
		return nil, fmt.Errorf("WAV source delivers mono 16-bit audio, got %d channels at %d bits", params.Channels, params.BitDepth)
	}
	frameBytes := params.FrameBytes()
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameBytes)
	}

	pcm := d.wav.PCM
	if d.wav.SampleRate != params.SampleRate {
		resampled, err := audio.ResamplePCM16(pcm, d.wav.SampleRate, params.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to resample WAV source: %w", err)
		}
		d.logger.Debug("Resampled WAV source",
			slog.Int("from", d.wav.SampleRate),
			slog.Int("to", params.SampleRate))
		pcm = resampled
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("WAV source %s holds no audio", d.config.Path)
	}

	var interval time.Duration
	if d.config.Pace > 0 {
		frameTime := time.Duration(params.FramesPerBuffer) * time.Second / time.Duration(params.SampleRate)
		interval = time.Duration(float64(frameTime) / d.config.Pace)
	}

	s := &wavStream{stop: make(chan struct{}), done: make(chan struct{})}
	go d.play(s, pcm, frameBytes, interval, fill, fail)

	return s, nil
}

// Terminate implements audio.Driver
func (d *WAVDriver) Terminate() error {
	return nil
}

// GetStatistics returns playback statistics
func (d *WAVDriver) GetStatistics() WAVStatistics {
	return WAVStatistics{
		FramesDelivered: d.framesDelivered.Load(),
		Loops:           d.loops.Load(),
		Duration:        d.wav.Duration(),
		SampleRate:      d.wav.SampleRate,
	}
}

func (d *WAVDriver) play(s *wavStream, pcm []byte, frameBytes int, interval time.Duration, fill audio.FillFunc, fail func(error)) {
	defer close(s.done)

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	offset := 0
	for {
		if ticker != nil {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-s.stop:
				return
			default:
			}
		}

		end := min(offset+frameBytes, len(pcm))
		if err := fill(pcm[offset:end]); err != nil {
			// The capture buffer is closed; nobody is listening any more
			return
		}
		d.framesDelivered.Add(1)
		offset = end

		if offset < len(pcm) {
			continue
		}
		if !d.config.Loop {
			d.logger.Debug("WAV source finished", slog.Uint64("frames", d.framesDelivered.Load()))
			fail(io.EOF)
			return
		}
		d.loops.Add(1)
		offset = 0
	}
}

type wavStream struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *wavStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *wavStream) Close() error {
	return s.Stop()
}
