package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	m.RecordFrameCaptured(320, 1)
	m.RecordFrameDropped()
	m.RecordVADFrame(true)
	m.RecordSegment(1.5)
	m.RecordRecognitionStream()
	m.RecordAudioSent(3200)
	m.RecordResponse()
	m.RecordFinalTranscript(87)
	m.RecordBatch(1, true)
	m.RecordPublish(nil)
	m.RecordCycleStarted()
	m.RecordCycleEnded(1, "network")
	m.RecordRestart()
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.RecordHTTPError("GET", "/health", "server_error")
}

func TestRecordCapture(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFrameCaptured(320, 1)
	m.RecordFrameCaptured(320, 2)
	m.RecordFrameDropped()

	if got := testutil.ToFloat64(m.FramesCaptured); got != 2 {
		t.Errorf("Expected 2 frames captured, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesCaptured); got != 640 {
		t.Errorf("Expected 640 bytes captured, got %v", got)
	}
	if got := testutil.ToFloat64(m.CaptureQueueDepth); got != 2 {
		t.Errorf("Expected queue depth 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Errorf("Expected 1 dropped frame, got %v", got)
	}
}

func TestRecordCycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCycleStarted()
	if got := testutil.ToFloat64(m.CycleRunning); got != 1 {
		t.Errorf("Expected running gauge 1, got %v", got)
	}

	m.RecordCycleEnded(2.5, "device")
	m.RecordCycleEnded(1, "")

	if got := testutil.ToFloat64(m.CycleRunning); got != 0 {
		t.Errorf("Expected running gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.CycleErrors.WithLabelValues("device")); got != 1 {
		t.Errorf("Expected 1 device error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.CycleErrors); got != 1 {
		t.Errorf("Expected a single error kind series, got %d", got)
	}
}

func TestRecordBatchAndPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBatch(1, true)
	m.RecordBatch(3, false)
	m.RecordBatch(2, false)
	m.RecordPublish(nil)
	m.RecordPublish(errors.New("broker down"))

	tests := []struct {
		name     string
		counter  prometheus.Counter
		expected float64
	}{
		{"reset batches", m.BatchesProcessed.WithLabelValues("true"), 1},
		{"partial batches", m.BatchesProcessed.WithLabelValues("false"), 2},
		{"successful publishes", m.Publishes.WithLabelValues("success"), 1},
		{"failed publishes", m.Publishes.WithLabelValues("failure"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.counter); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}
