package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the imperio service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	FramesCaptured    prometheus.Counter
	BytesCaptured     prometheus.Counter
	FramesDropped     prometheus.Counter
	CaptureQueueDepth prometheus.Gauge

	// VAD metrics
	VADFramesProcessed prometheus.Counter
	VADSpeechFrames    prometheus.Counter
	SegmentsEmitted    prometheus.Counter
	SegmentDuration    prometheus.Histogram

	// Recognition metrics
	RecognitionStreams   prometheus.Counter
	AudioBytesSent       prometheus.Counter
	ResponsesReceived    prometheus.Counter
	FinalTranscripts     prometheus.Counter
	TranscriptConfidence prometheus.Histogram

	// Batch metrics
	BatchesProcessed *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	Publishes        *prometheus.CounterVec

	// Pipeline metrics
	CyclesStarted prometheus.Counter
	CycleErrors   *prometheus.CounterVec
	CycleRunning  prometheus.Gauge
	CycleDuration prometheus.Histogram
	Restarts      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_capture_frames_total",
			Help: "Total number of audio frames pushed by the capture device",
		}),
		BytesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_capture_bytes_total",
			Help: "Total number of PCM bytes pushed by the capture device",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_capture_frames_dropped_total",
			Help: "Total number of queued frames dropped because the capture queue was full",
		}),
		CaptureQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imperio_capture_queue_frames",
			Help: "Number of frames queued in the capture buffer after the last push",
		}),

		// VAD metrics
		VADFramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_vad_frames_processed_total",
			Help: "Total number of frames classified by the segmenter",
		}),
		VADSpeechFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_vad_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		SegmentsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_vad_segments_total",
			Help: "Total number of voiced segments emitted",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imperio_vad_segment_duration_seconds",
			Help:    "Duration of emitted voiced segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),

		// Recognition metrics
		RecognitionStreams: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_recognition_streams_total",
			Help: "Total number of streaming recognition sessions opened",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_recognition_audio_bytes_total",
			Help: "Total number of audio bytes sent to the recognition service",
		}),
		ResponsesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_recognition_responses_total",
			Help: "Total number of responses received from the recognition service",
		}),
		FinalTranscripts: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_final_transcripts_total",
			Help: "Total number of final transcripts reported",
		}),
		TranscriptConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imperio_final_transcript_confidence",
			Help:    "Confidence percentage of final transcripts",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		}),

		// Batch metrics
		BatchesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imperio_batches_processed_total",
			Help: "Total number of batches handed to the batch processor",
		}, []string{"reset"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imperio_batch_size",
			Help:    "Number of texts per processed batch",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imperio_mqtt_publishes_total",
			Help: "Total number of MQTT batch publications",
		}, []string{"result"}),

		// Pipeline metrics
		CyclesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_cycles_started_total",
			Help: "Total number of transcription cycles started",
		}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imperio_cycle_errors_total",
			Help: "Total number of transcription cycles that ended with an error",
		}, []string{"kind"}),
		CycleRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imperio_cycle_running",
			Help: "Whether a transcription cycle is currently running",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imperio_cycle_duration_seconds",
			Help:    "Duration of transcription cycles",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "imperio_pipeline_restarts_total",
			Help: "Total number of pipeline restarts after a failed cycle",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imperio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imperio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imperio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured records a pushed frame and the resulting queue depth
func (m *Metrics) RecordFrameCaptured(sizeBytes, queued int) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	m.BytesCaptured.Add(float64(sizeBytes))
	m.CaptureQueueDepth.Set(float64(queued))
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordVADFrame records one classifier decision
func (m *Metrics) RecordVADFrame(isSpeech bool) {
	if m == nil {
		return
	}
	m.VADFramesProcessed.Inc()
	if isSpeech {
		m.VADSpeechFrames.Inc()
	}
}

// RecordSegment records an emitted voiced segment
func (m *Metrics) RecordSegment(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsEmitted.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordRecognitionStream increments the recognition streams counter
func (m *Metrics) RecordRecognitionStream() {
	if m == nil {
		return
	}
	m.RecognitionStreams.Inc()
}

// RecordAudioSent adds to the audio bytes sent counter
func (m *Metrics) RecordAudioSent(sizeBytes int) {
	if m == nil {
		return
	}
	m.AudioBytesSent.Add(float64(sizeBytes))
}

// RecordResponse increments the responses received counter
func (m *Metrics) RecordResponse() {
	if m == nil {
		return
	}
	m.ResponsesReceived.Inc()
}

// RecordFinalTranscript records a final transcript with its confidence percentage
func (m *Metrics) RecordFinalTranscript(confidence int) {
	if m == nil {
		return
	}
	m.FinalTranscripts.Inc()
	m.TranscriptConfidence.Observe(float64(confidence))
}

// RecordBatch records a batch handed to the batch processor
func (m *Metrics) RecordBatch(size int, reset bool) {
	if m == nil {
		return
	}
	label := "false"
	if reset {
		label = "true"
	}
	m.BatchesProcessed.WithLabelValues(label).Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordPublish records the outcome of an MQTT publication
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Publishes.WithLabelValues(result).Inc()
}

// RecordCycleStarted marks a transcription cycle as running
func (m *Metrics) RecordCycleStarted() {
	if m == nil {
		return
	}
	m.CyclesStarted.Inc()
	m.CycleRunning.Set(1)
}

// RecordCycleEnded marks the current cycle as stopped. kind is empty when the
// cycle ended without error.
func (m *Metrics) RecordCycleEnded(durationSeconds float64, kind string) {
	if m == nil {
		return
	}
	m.CycleRunning.Set(0)
	m.CycleDuration.Observe(durationSeconds)
	if kind != "" {
		m.CycleErrors.WithLabelValues(kind).Inc()
	}
}

// RecordRestart increments the pipeline restarts counter
func (m *Metrics) RecordRestart() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
