package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// Environment variables that override the configuration file
const (
	EnvRecognitionAPIKey   = "IMPERIO_RECOGNITION_API_KEY"
	EnvRecognitionEndpoint = "IMPERIO_RECOGNITION_ENDPOINT"
	EnvMQTTPassword        = "IMPERIO_MQTT_PASSWORD"
	EnvLogLevel            = "IMPERIO_LOG_LEVEL"
)

// Config represents the complete service configuration
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Device      DeviceConfig      `yaml:"device"`
	VAD         VADConfig         `yaml:"vad"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Batch       BatchConfig       `yaml:"batch"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	BitDepth        int     `yaml:"bit_depth"`
	ChunkDuration   float64 `yaml:"chunk_duration"` // seconds
	MaxQueuedFrames int     `yaml:"max_queued_frames"`
}

// DeviceConfig selects the audio source
type DeviceConfig struct {
	Source        string  `yaml:"source"` // portaudio, wav or udp
	WAVPath       string  `yaml:"wav_path"`
	Pace          float64 `yaml:"pace"`
	Loop          bool    `yaml:"loop"`
	UDPAddress    string  `yaml:"udp_address"`
	UDPBufferSize int     `yaml:"udp_buffer_size"`
}

// VADConfig contains voice activity segmentation parameters
type VADConfig struct {
	Enabled         bool    `yaml:"enabled"`
	PaddingFrames   int     `yaml:"padding_frames"`
	Ratio           float64 `yaml:"ratio"`
	FrameDuration   float64 `yaml:"frame_duration"` // seconds, 0 = one frame per chunk
	ClassifierRate  int     `yaml:"classifier_rate"`
	EnergyThreshold float64 `yaml:"energy_threshold"` // RMS relative to full scale
	FlushOnEnd      bool    `yaml:"flush_on_end"`
	DumpDir         string  `yaml:"dump_dir"`
}

// RecognitionConfig contains streaming recognition service configuration
type RecognitionConfig struct {
	Endpoint          string   `yaml:"endpoint"`
	APIKey            string   `yaml:"api_key"`
	Language          string   `yaml:"language"`
	Model             string   `yaml:"model"`
	Enhanced          bool     `yaml:"enhanced"`
	Punctuation       bool     `yaml:"punctuation"`
	InterimResults    bool     `yaml:"interim_results"`
	Phrases           []string `yaml:"phrases"`
	HandshakeTimeout  int      `yaml:"handshake_timeout"`   // seconds
	KeepAliveInterval int      `yaml:"keep_alive_interval"` // seconds
	WriteTimeout      int      `yaml:"write_timeout"`       // seconds
}

// BatchConfig selects the downstream batch processor
type BatchConfig struct {
	Processor string     `yaml:"processor"` // log or mqtt
	MinWords  int        `yaml:"min_words"` // 0 = forward final transcripts only
	MQTT      MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT publisher configuration
type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	QoS            int    `yaml:"qos"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	PublishTimeout int    `yaml:"publish_timeout"` // seconds
}

// PipelineConfig contains supervision parameters
type PipelineConfig struct {
	RestartDelay    float64 `yaml:"restart_delay"`     // seconds
	MaxRestartDelay float64 `yaml:"max_restart_delay"` // seconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// GRPCConfig contains gRPC health server configuration
type GRPCConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for every setting the file omits
func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			BitDepth:      16,
			ChunkDuration: 0.1,
		},
		Device: DeviceConfig{
			Source:        "portaudio",
			Pace:          1,
			UDPBufferSize: 65536,
		},
		VAD: VADConfig{
			Enabled:         true,
			PaddingFrames:   20,
			Ratio:           0.9,
			EnergyThreshold: 0.02,
		},
		Recognition: RecognitionConfig{
			Language:          "en-US",
			Enhanced:          true,
			Punctuation:       true,
			InterimResults:    true,
			HandshakeTimeout:  10,
			KeepAliveInterval: 5,
			WriteTimeout:      10,
		},
		Batch: BatchConfig{
			Processor: "log",
			MQTT: MQTTConfig{
				ClientID:       "imperio",
				TopicPrefix:    "imperio",
				QoS:            1,
				ConnectTimeout: 10,
				PublishTimeout: 5,
			},
		},
		Pipeline: PipelineConfig{
			RestartDelay:    1,
			MaxRestartDelay: 30,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		GRPC: GRPCConfig{
			Port:    9090,
			Address: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadEnv loads variables from the given .env files (".env" when none are
// given) without overriding variables already set. Missing files are
// ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads and parses the configuration file, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides secrets and the log level from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRecognitionAPIKey); ok {
		c.Recognition.APIKey = v
	}
	if v, ok := lookup(EnvRecognitionEndpoint); ok && v != "" {
		c.Recognition.Endpoint = v
	}
	if v, ok := lookup(EnvMQTTPassword); ok {
		c.Batch.MQTT.Password = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", errkind.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.GRPC.Validate(); err != nil {
		return fmt.Errorf("grpc config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkDuration <= 0 || a.ChunkDuration > 1 {
		return fmt.Errorf("chunk_duration must be in (0, 1] seconds, got %f", a.ChunkDuration)
	}

	if a.ChunkFrames() < 1 {
		return fmt.Errorf("chunk_duration %f is shorter than one sample", a.ChunkDuration)
	}

	if a.MaxQueuedFrames < 0 {
		return fmt.Errorf("max_queued_frames cannot be negative, got %d", a.MaxQueuedFrames)
	}

	return nil
}

// Validate validates device configuration
func (d *DeviceConfig) Validate() error {
	switch d.Source {
	case "portaudio":
	case "wav":
		if d.WAVPath == "" {
			return fmt.Errorf("wav_path cannot be empty for the wav source")
		}
		if d.Pace < 0 {
			return fmt.Errorf("pace cannot be negative, got %f", d.Pace)
		}
		if d.Loop && d.Pace == 0 {
			return fmt.Errorf("loop requires a positive pace")
		}
	case "udp":
		if d.UDPAddress == "" {
			return fmt.Errorf("udp_address cannot be empty for the udp source")
		}
		if d.UDPBufferSize < 1024 {
			return fmt.Errorf("udp_buffer_size must be at least 1024 bytes, got %d", d.UDPBufferSize)
		}
	default:
		return fmt.Errorf("source must be one of [portaudio, wav, udp], got '%s'", d.Source)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.PaddingFrames < 1 {
		return fmt.Errorf("padding_frames must be at least 1, got %d", v.PaddingFrames)
	}

	if v.Ratio <= 0 || v.Ratio >= 1 {
		return fmt.Errorf("ratio must be between 0 and 1 (exclusive), got %f", v.Ratio)
	}

	if v.FrameDuration < 0 || v.FrameDuration > 1 {
		return fmt.Errorf("frame_duration must be between 0 and 1 seconds, got %f", v.FrameDuration)
	}

	if v.ClassifierRate < 0 {
		return fmt.Errorf("classifier_rate cannot be negative, got %d", v.ClassifierRate)
	}

	if v.EnergyThreshold < 0 || v.EnergyThreshold > 1 {
		return fmt.Errorf("energy_threshold must be between 0 and 1 (RMS relative to full scale), got %f", v.EnergyThreshold)
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint scheme must be ws or wss, got '%s'", u.Scheme)
	}

	if r.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if r.HandshakeTimeout < 0 || r.KeepAliveInterval < 0 || r.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	return nil
}

// Validate validates batch configuration
func (b *BatchConfig) Validate() error {
	if b.MinWords < 0 {
		return fmt.Errorf("min_words cannot be negative, got %d", b.MinWords)
	}

	switch b.Processor {
	case "log":
		return nil
	case "mqtt":
		return b.MQTT.Validate()
	default:
		return fmt.Errorf("processor must be 'log' or 'mqtt', got '%s'", b.Processor)
	}
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if m.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", m.QoS)
	}

	if m.ConnectTimeout < 0 || m.PublishTimeout < 0 {
		return fmt.Errorf("mqtt timeouts cannot be negative")
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.RestartDelay <= 0 {
		return fmt.Errorf("restart_delay must be positive, got %f", p.RestartDelay)
	}

	if p.MaxRestartDelay < p.RestartDelay {
		return fmt.Errorf("max_restart_delay (%f) must not be less than restart_delay (%f)",
			p.MaxRestartDelay, p.RestartDelay)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates gRPC configuration
func (g *GRPCConfig) Validate() error {
	if g.Enabled {
		if g.Port < 1 || g.Port > 65535 {
			return fmt.Errorf("grpc port must be between 1 and 65535, got %d", g.Port)
		}

		if g.Address == "" {
			return fmt.Errorf("grpc address cannot be empty when gRPC is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// ChunkFrames returns the number of frames per capture chunk
func (a *AudioConfig) ChunkFrames() int {
	return int(float64(a.SampleRate)*a.ChunkDuration + 0.5)
}

// FrameBytes returns the classifier frame size in bytes at the capture
// sample rate, or 0 when every chunk is classified as one frame
func (v *VADConfig) FrameBytes(sampleRate int) int {
	return 2 * int(float64(sampleRate)*v.FrameDuration+0.5)
}

// GetHandshakeTimeout returns the handshake timeout as a time.Duration
func (r *RecognitionConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(r.HandshakeTimeout) * time.Second
}

// GetKeepAliveInterval returns the keep-alive interval as a time.Duration
func (r *RecognitionConfig) GetKeepAliveInterval() time.Duration {
	return time.Duration(r.KeepAliveInterval) * time.Second
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (r *RecognitionConfig) GetWriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeout) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a time.Duration
func (m *MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}

// GetPublishTimeout returns the MQTT publish timeout as a time.Duration
func (m *MQTTConfig) GetPublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeout) * time.Second
}

// GetRestartDelay returns the initial restart delay as a time.Duration
func (p *PipelineConfig) GetRestartDelay() time.Duration {
	return time.Duration(p.RestartDelay * float64(time.Second))
}

// GetMaxRestartDelay returns the restart delay cap as a time.Duration
func (p *PipelineConfig) GetMaxRestartDelay() time.Duration {
	return time.Duration(p.MaxRestartDelay * float64(time.Second))
}
