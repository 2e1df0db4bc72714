package device

import (
	"fmt"
	"log/slog"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// Source kinds
const (
	KindPortAudio = "portaudio"
	KindWAV       = "wav"
	KindUDP       = "udp"
)

// ErrPortAudioUnavailable is returned when the binary was built without
// the portaudio build tag
var ErrPortAudioUnavailable = fmt.Errorf("built without PortAudio support (rebuild with -tags portaudio): %w", errkind.ErrDevice)

// Config selects and configures an audio source
type Config struct {
	Kind string
	WAV  WAVConfig
	UDP  UDPConfig
}

// New creates the audio source selected by cfg.Kind
func New(cfg Config, logger *slog.Logger) (audio.Driver, error) {
	var (
		d   audio.Driver
		err error
	)

	switch cfg.Kind {
	case KindPortAudio, "":
		d, err = NewPortAudioDriver(logger)
	case KindWAV:
		d, err = NewWAVDriver(cfg.WAV, logger)
	case KindUDP:
		d, err = NewUDPDriver(cfg.UDP, logger)
	default:
		return nil, fmt.Errorf("unknown audio source %q: %w", cfg.Kind, errkind.ErrConfiguration)
	}

	if err != nil {
		return nil, err
	}
	return d, nil
}
