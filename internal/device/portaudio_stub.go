//go:build !portaudio

package device

import (
	"log/slog"

	"github.com/imbesat-rizvi/imperio/internal/audio"
)

// PortAudioAvailable reports whether the binary was built with PortAudio
// support
const PortAudioAvailable = false

// PortAudioDriver is unavailable without the portaudio build tag
type PortAudioDriver struct{}

// NewPortAudioDriver returns ErrPortAudioUnavailable; rebuild with
// -tags portaudio to capture from a microphone
func NewPortAudioDriver(logger *slog.Logger) (*PortAudioDriver, error) {
	return nil, ErrPortAudioUnavailable
}

// Open implements audio.Driver
func (d *PortAudioDriver) Open(params audio.DeviceParams, fill audio.FillFunc, fail func(error)) (audio.DeviceStream, error) {
	return nil, ErrPortAudioUnavailable
}

// Terminate implements audio.Driver
func (d *PortAudioDriver) Terminate() error {
	return nil
}

// FramesCaptured always returns zero
func (d *PortAudioDriver) FramesCaptured() uint64 {
	return 0
}
