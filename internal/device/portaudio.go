//go:build portaudio

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/imbesat-rizvi/imperio/internal/audio"
)

// PortAudioAvailable reports whether the binary was built with PortAudio
// support
const PortAudioAvailable = true

// PortAudioDriver captures from the default input device. PortAudio is
// initialized on Open and released on Terminate, so a driver can be reused
// across capture cycles.
type PortAudioDriver struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool

	framesCaptured atomic.Uint64
}

// NewPortAudioDriver creates a driver for the default input device
func NewPortAudioDriver(logger *slog.Logger) (*PortAudioDriver, error) {
	return &PortAudioDriver{logger: logger.With("component", "portaudio_driver")}, nil
}

// Open starts a callback-driven input stream. The callback runs on a
// PortAudio thread.
func (d *PortAudioDriver) Open(params audio.DeviceParams, fill audio.FillFunc, fail func(error)) (audio.DeviceStream, error) {
	if params.BitDepth != 16 {
		return nil, fmt.Errorf("PortAudio source captures 16-bit audio, got %d bits", params.BitDepth)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		d.initialized = true
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no default input device: %w", err)
	}

	var closed atomic.Bool
	callback := func(in []int16) {
		if closed.Load() {
			return
		}
		if err := fill(audio.SamplesToPCM16(in)); err != nil {
			closed.Store(true)
			return
		}
		d.framesCaptured.Add(1)
	}

	stream, err := portaudio.OpenDefaultStream(params.Channels, 0, float64(params.SampleRate), params.FramesPerBuffer, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %s: %w", device.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %s: %w", device.Name, err)
	}

	d.logger.Info("Capturing from input device",
		slog.String("device", device.Name),
		slog.Int("sample_rate", params.SampleRate),
		slog.Int("frames_per_buffer", params.FramesPerBuffer),
	)

	return &portAudioStream{stream: stream}, nil
}

// Terminate releases PortAudio
func (d *PortAudioDriver) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	d.initialized = false
	return portaudio.Terminate()
}

// FramesCaptured returns the number of frames delivered by the device
func (d *PortAudioDriver) FramesCaptured() uint64 {
	return d.framesCaptured.Load()
}

type portAudioStream struct {
	stream  *portaudio.Stream
	stopped atomic.Bool
}

func (s *portAudioStream) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	err := s.Stop()
	return errors.Join(err, s.stream.Close())
}
