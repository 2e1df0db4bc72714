package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/batch"
	"github.com/imbesat-rizvi/imperio/internal/config"
	"github.com/imbesat-rizvi/imperio/internal/device"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
	"github.com/imbesat-rizvi/imperio/internal/pipeline"
	"github.com/imbesat-rizvi/imperio/internal/server"
	"github.com/imbesat-rizvi/imperio/internal/transcription"
	"github.com/imbesat-rizvi/imperio/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "imperio"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file with credentials")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary without credentials
	logger.Info("Configuration loaded",
		slog.String("source", cfg.Device.Source),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.Int("vad_padding_frames", cfg.VAD.PaddingFrames),
		slog.Float64("vad_ratio", cfg.VAD.Ratio),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.String("language", cfg.Recognition.Language),
		slog.String("processor", cfg.Batch.Processor),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	driver, err := device.New(deviceConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to create audio source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:          cfg.Recognition.Endpoint,
		APIKey:            cfg.Recognition.APIKey,
		HandshakeTimeout:  cfg.Recognition.GetHandshakeTimeout(),
		KeepAliveInterval: cfg.Recognition.GetKeepAliveInterval(),
		WriteTimeout:      cfg.Recognition.GetWriteTimeout(),
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create recognition client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	processor, closeProcessor, err := newProcessor(ctx, cfg, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create batch processor", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeProcessor()

	deps := pipeline.Dependencies{
		Driver:     driver,
		Recognizer: client,
		Processor:  processor,
	}
	if cfg.Batch.MinWords > 0 {
		minWords := cfg.Batch.MinWords
		deps.NewBatcher = func() batch.Batcher { return batch.NewWordBatcher(minWords) }
	}

	pipelineConfig, classifier, err := newPipelineConfig(cfg)
	if err != nil {
		logger.Error("Invalid pipeline configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	deps.Classifier = classifier

	p, err := pipeline.New(pipelineConfig, deps, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Pipeline initialized",
		slog.Bool("segmentation", pipelineConfig.Segmentation != nil),
		slog.Int("phrases", len(p.Phrases())),
		slog.Duration("restart_delay", pipelineConfig.RestartDelay),
	)

	var grpcServer *server.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer = server.NewGRPCServer(cfg.GRPC, logger)
		p.OnStateChange(grpcServer.SetServing)
		if err := grpcServer.Start(); err != nil {
			logger.Error("Failed to start gRPC server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, client, appMetrics, registry)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		p.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop the pipeline first so the recognition stream is closed cleanly
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("Pipeline did not stop in time")
	}

	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if grpcServer != nil {
		grpcServer.Stop(shutdownCtx)
	}

	status := p.GetStatus()
	recognition := client.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("cycles", status.Cycles),
		slog.Uint64("restarts", status.Restarts),
		slog.Uint64("responses", status.Responses),
		slog.Uint64("streams_opened", recognition.StreamsOpened),
		slog.Uint64("audio_bytes_sent", recognition.AudioBytesSent),
	)

	logger.Info("Service stopped")
}

// deviceConfig maps the device section onto the audio source factory
func deviceConfig(cfg *config.Config) device.Config {
	return device.Config{
		Kind: cfg.Device.Source,
		WAV: device.WAVConfig{
			Path: cfg.Device.WAVPath,
			Pace: cfg.Device.Pace,
			Loop: cfg.Device.Loop,
		},
		UDP: device.UDPConfig{
			Address:    cfg.Device.UDPAddress,
			BufferSize: cfg.Device.UDPBufferSize,
		},
	}
}

// newProcessor creates the configured batch processor and its release func
func newProcessor(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (batch.Processor, func(), error) {
	if cfg.Batch.Processor != "mqtt" {
		return batch.NewLogProcessor(logger, nil), func() {}, nil
	}

	publisher, err := batch.NewMQTTPublisher(batch.MQTTConfig{
		BrokerURL:      cfg.Batch.MQTT.Broker,
		ClientID:       cfg.Batch.MQTT.ClientID,
		Username:       cfg.Batch.MQTT.Username,
		Password:       cfg.Batch.MQTT.Password,
		TopicPrefix:    cfg.Batch.MQTT.TopicPrefix,
		QoS:            byte(cfg.Batch.MQTT.QoS),
		Language:       cfg.Recognition.Language,
		ConnectTimeout: cfg.Batch.MQTT.GetConnectTimeout(),
		PublishTimeout: cfg.Batch.MQTT.GetPublishTimeout(),
	}, logger, m)
	if err != nil {
		return nil, nil, err
	}

	if err := publisher.Connect(ctx); err != nil {
		return nil, nil, err
	}

	return publisher, publisher.Close, nil
}

// newPipelineConfig derives the pipeline configuration and, with
// segmentation enabled, the energy classifier
func newPipelineConfig(cfg *config.Config) (pipeline.Config, vad.Classifier, error) {
	recognition := transcription.DefaultRecognitionConfig(cfg.Audio.SampleRate, cfg.Recognition.Language)
	recognition.Model = cfg.Recognition.Model
	recognition.Enhanced = cfg.Recognition.Enhanced
	recognition.Punctuation = cfg.Recognition.Punctuation
	recognition.InterimResults = cfg.Recognition.InterimResults
	recognition.Phrases = cfg.Recognition.Phrases

	pc := pipeline.Config{
		Streamer: audio.StreamerConfig{
			SampleRate:      cfg.Audio.SampleRate,
			BitDepth:        cfg.Audio.BitDepth,
			ChunkFrames:     cfg.Audio.ChunkFrames(),
			MaxQueuedFrames: cfg.Audio.MaxQueuedFrames,
		},
		Recognition:     recognition,
		RestartDelay:    cfg.Pipeline.GetRestartDelay(),
		MaxRestartDelay: cfg.Pipeline.GetMaxRestartDelay(),
	}

	if !cfg.VAD.Enabled {
		return pc, nil, nil
	}

	frameBytes := cfg.VAD.FrameBytes(cfg.Audio.SampleRate)
	classifierRate := cfg.VAD.ClassifierRate
	if classifierRate == 0 {
		classifierRate = cfg.Audio.SampleRate
	}

	// Resampled frames change size, so only same-rate frames are size-checked
	adapter := vad.ResampleAdapter(cfg.Audio.SampleRate, classifierRate)
	expected := frameBytes
	if adapter != nil {
		expected = 0
	}

	classifier, err := vad.NewEnergyClassifier(cfg.VAD.EnergyThreshold, expected)
	if err != nil {
		return pipeline.Config{}, nil, err
	}

	pc.Segmentation = &vad.Config{
		PaddingFrames:  cfg.VAD.PaddingFrames,
		Ratio:          cfg.VAD.Ratio,
		SampleRate:     cfg.Audio.SampleRate,
		ClassifierRate: classifierRate,
		FrameBytes:     frameBytes,
		FlushOnEnd:     cfg.VAD.FlushOnEnd,
		Adapter:        adapter,
	}
	pc.DumpDir = cfg.VAD.DumpDir

	return pc, classifier, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
