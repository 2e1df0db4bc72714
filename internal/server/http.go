package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imbesat-rizvi/imperio/internal/config"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
	"github.com/imbesat-rizvi/imperio/internal/pipeline"
	"github.com/imbesat-rizvi/imperio/internal/transcription"
)

const (
	serviceName    = "imperio"
	serviceVersion = "1.0.0"
)

// PipelineStatus reports the state of the transcription pipeline
type PipelineStatus interface {
	GetStatus() pipeline.Status
}

// RecognitionStats reports recognition client statistics
type RecognitionStats interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	pipeline    PipelineStatus
	recognition RecognitionStats
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer

	// Server state
	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. recognition may be nil.
// /metrics serves gatherer, or the default registry when gatherer is nil.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	status PipelineStatus, recognition RecognitionStats, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:      logger.With("component", "http_server"),
		config:      appConfig,
		pipeline:    status,
		recognition: recognition,
		metrics:     m,
		gatherer:    gatherer,
		startTime:   time.Now(),
	}

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, fmt.Sprintf("%d", cfg.Port)),
		Handler:      h.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Routes returns the API router
func (h *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (not instrumented itself)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", lis.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint. The service is healthy
// while a transcription cycle is running.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.pipeline.GetStatus()

	state, code := "healthy", http.StatusOK
	if !status.Running {
		state, code = "unavailable", http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"running":    status.Running,
				"cycle_id":   status.CycleID,
				"cycles":     status.Cycles,
				"restarts":   status.Restarts,
				"last_error": status.LastError,
			},
		},
	}

	writeJSON(w, code, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.pipeline.GetStatus(),
	}

	if h.recognition != nil {
		stats["recognition"] = h.recognition.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.config

	// Credentials are omitted
	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":       c.Audio.SampleRate,
			"bit_depth":         c.Audio.BitDepth,
			"chunk_duration":    c.Audio.ChunkDuration,
			"max_queued_frames": c.Audio.MaxQueuedFrames,
		},
		"device": map[string]interface{}{
			"source":      c.Device.Source,
			"wav_path":    c.Device.WAVPath,
			"pace":        c.Device.Pace,
			"loop":        c.Device.Loop,
			"udp_address": c.Device.UDPAddress,
		},
		"vad": map[string]interface{}{
			"enabled":          c.VAD.Enabled,
			"padding_frames":   c.VAD.PaddingFrames,
			"ratio":            c.VAD.Ratio,
			"frame_duration":   c.VAD.FrameDuration,
			"classifier_rate":  c.VAD.ClassifierRate,
			"energy_threshold": c.VAD.EnergyThreshold,
			"flush_on_end":     c.VAD.FlushOnEnd,
			"dump_dir":         c.VAD.DumpDir,
		},
		"recognition": map[string]interface{}{
			"endpoint":            c.Recognition.Endpoint,
			"language":            c.Recognition.Language,
			"model":               c.Recognition.Model,
			"enhanced":            c.Recognition.Enhanced,
			"punctuation":         c.Recognition.Punctuation,
			"interim_results":     c.Recognition.InterimResults,
			"phrases":             c.Recognition.Phrases,
			"keep_alive_interval": c.Recognition.KeepAliveInterval,
		},
		"batch": map[string]interface{}{
			"processor":    c.Batch.Processor,
			"min_words":    c.Batch.MinWords,
			"mqtt_broker":  c.Batch.MQTT.Broker,
			"topic_prefix": c.Batch.MQTT.TopicPrefix,
			"qos":          c.Batch.MQTT.QoS,
		},
		"pipeline": map[string]interface{}{
			"restart_delay":     c.Pipeline.RestartDelay,
			"max_restart_delay": c.Pipeline.MaxRestartDelay,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "Imperio Speech Recognition Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /stats":   "Pipeline and recognition statistics",
			"GET /config":  "Service configuration without credentials",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
