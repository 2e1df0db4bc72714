package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/imbesat-rizvi/imperio/internal/batch"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
)

// Reporter receives every final transcript with its confidence in percent
type Reporter interface {
	ReportFinal(text string, confidence int)
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(text string, confidence int)

// ReportFinal calls f(text, confidence)
func (f ReporterFunc) ReportFinal(text string, confidence int) {
	f(text, confidence)
}

// LogReporter logs final transcripts and records them in metrics
type LogReporter struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLogReporter creates a LogReporter
func NewLogReporter(logger *slog.Logger, m *metrics.Metrics) *LogReporter {
	return &LogReporter{logger: logger, metrics: m}
}

// ReportFinal implements Reporter
func (r *LogReporter) ReportFinal(text string, confidence int) {
	r.logger.Info("Final transcript",
		slog.String("text", text),
		slog.Int("confidence", confidence))
	r.metrics.RecordFinalTranscript(confidence)
}

// Multiplexer turns recognition responses into text batches for a
// processor. It is not safe for concurrent use.
type Multiplexer struct {
	processor batch.Processor
	batcher   batch.Batcher
	reporter  Reporter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	responses atomic.Uint64
	handled   atomic.Uint64
}

// NewMultiplexer creates a Multiplexer. batcher may be nil, in which case
// only final transcripts are forwarded, one per batch. reporter may be nil.
func NewMultiplexer(processor batch.Processor, batcher batch.Batcher, reporter Reporter, logger *slog.Logger, m *metrics.Metrics) *Multiplexer {
	return &Multiplexer{
		processor: processor,
		batcher:   batcher,
		reporter:  reporter,
		logger:    logger.With("component", "multiplexer"),
		metrics:   m,
	}
}

// Handle processes one response. Responses without results, and responses
// whose only result is interim, are ignored.
func (mx *Multiplexer) Handle(ctx context.Context, resp *Response) error {
	mx.responses.Add(1)

	if resp == nil || len(resp.Results) == 0 {
		return nil
	}
	if len(resp.Results) == 1 && !resp.Results[0].IsFinal {
		return nil
	}

	first := resp.Results[0]
	top, ok := first.Top()
	if !ok {
		return nil
	}
	mx.handled.Add(1)

	var texts []string
	switch {
	case mx.batcher != nil:
		texts = mx.batcher.Batch(top.Text, first.IsFinal)
	case first.IsFinal:
		texts = []string{top.Text}
	}

	if len(texts) > 0 {
		mx.logger.Debug("Forwarding batch",
			slog.Int("size", len(texts)),
			slog.Bool("reset", first.IsFinal))
		if err := mx.processor.Process(ctx, texts, first.IsFinal); err != nil {
			return fmt.Errorf("process batch: %w", err)
		}
		mx.metrics.RecordBatch(len(texts), first.IsFinal)
	}

	if first.IsFinal && mx.reporter != nil {
		mx.reporter.ReportFinal(top.Text, int(top.Confidence*100))
	}

	return nil
}

// Run handles responses from stream until it ends. A normal end of stream
// returns nil.
func (mx *Multiplexer) Run(ctx context.Context, stream ResponseStream) error {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := mx.Handle(ctx, resp); err != nil {
			return err
		}
	}
}

// Responses returns the number of responses seen
func (mx *Multiplexer) Responses() uint64 {
	return mx.responses.Load()
}

// Handled returns the number of responses that were processed
func (mx *Multiplexer) Handled() uint64 {
	return mx.handled.Load()
}
