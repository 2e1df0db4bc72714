package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/imbesat-rizvi/imperio/internal/audio"
	"github.com/imbesat-rizvi/imperio/internal/batch"
	"github.com/imbesat-rizvi/imperio/internal/errkind"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
	"github.com/imbesat-rizvi/imperio/internal/transcription"
	"github.com/imbesat-rizvi/imperio/internal/vad"
)

// Config contains pipeline configuration
type Config struct {
	Streamer     audio.StreamerConfig
	Segmentation *vad.Config // nil streams every captured chunk
	Recognition  transcription.RecognitionConfig

	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// DumpDir, when set, receives every voiced segment as a WAV file
	DumpDir string
}

// Dependencies are the collaborators of a pipeline
type Dependencies struct {
	Driver     audio.Driver
	Recognizer transcription.Recognizer
	Classifier vad.Classifier // required with segmentation
	Processor  batch.Processor
	// NewBatcher, when set, builds the batcher of each cycle so that no
	// utterance state survives a restart
	NewBatcher func() batch.Batcher
}

// Pipeline runs transcription cycles: capture, optional segmentation,
// streaming recognition and response multiplexing.
type Pipeline struct {
	config     Config
	deps       Dependencies
	reporter   transcription.Reporter
	base       *slog.Logger
	logger     *slog.Logger
	metrics    *metrics.Metrics
	stateHook  func(running bool)
	cycles     atomic.Uint64
	restarts   atomic.Uint64
	dumped     atomic.Uint64
	dumpFailed atomic.Uint64

	mu        sync.RWMutex
	running   bool
	cycleID   string
	startedAt time.Time
	lastError error
	lastFinal string
	lastConf  int
	mux       *transcription.Multiplexer // current cycle
	responses uint64                     // finished cycles
	handled   uint64
	streamer  *audio.Streamer
	segmenter *vad.Segmenter
}

// Status is a snapshot of the pipeline state
type Status struct {
	Running         bool                `json:"running"`
	CycleID         string              `json:"cycle_id,omitempty"`
	CycleStarted    *time.Time          `json:"cycle_started,omitempty"`
	Cycles          uint64              `json:"cycles"`
	Restarts        uint64              `json:"restarts"`
	LastError       string              `json:"last_error,omitempty"`
	LastErrorKind   string              `json:"last_error_kind,omitempty"`
	LastTranscript  string              `json:"last_transcript,omitempty"`
	LastConfidence  int                 `json:"last_confidence"`
	Responses       uint64              `json:"responses"`
	Handled         uint64              `json:"responses_handled"`
	SegmentsDumped  uint64              `json:"segments_dumped"`
	DumpFailures    uint64              `json:"dump_failures"`
	Capture         *audio.CaptureStats `json:"capture,omitempty"`
	Segmenter       *vad.SegmenterStats `json:"segmenter,omitempty"`
	SegmentationOn  bool                `json:"segmentation_enabled"`
	RecognitionLang string              `json:"language"`
}

// New creates a pipeline. Phrases offered by the processor are merged into
// the recognition phrases once, here.
func New(cfg Config, deps Dependencies, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("audio driver is required: %w", errkind.ErrConfiguration)
	}
	if deps.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required: %w", errkind.ErrConfiguration)
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("batch processor is required: %w", errkind.ErrConfiguration)
	}
	if err := cfg.Streamer.Validate(); err != nil {
		return nil, err
	}
	if cfg.Segmentation != nil {
		if deps.Classifier == nil {
			return nil, fmt.Errorf("classifier is required with segmentation: %w", errkind.ErrConfiguration)
		}
		if err := cfg.Segmentation.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Recognition.SampleRate == 0 {
		cfg.Recognition.SampleRate = cfg.Streamer.SampleRate
	}
	if err := cfg.Recognition.Validate(); err != nil {
		return nil, err
	}

	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}

	if cfg.DumpDir != "" {
		if err := os.MkdirAll(cfg.DumpDir, 0o755); err != nil {
			return nil, fmt.Errorf("create dump directory: %w: %w", errkind.ErrConfiguration, err)
		}
	}

	cfg.Recognition.Phrases = batch.MergePhrases(cfg.Recognition.Phrases, batch.PhrasesOf(deps.Processor))

	p := &Pipeline{
		config:   cfg,
		deps:     deps,
		base:     logger,
		logger:   logger.With("component", "pipeline"),
		metrics:  m,
		reporter: transcription.NewLogReporter(logger, m),
	}

	return p, nil
}

// OnStateChange registers fn to be called whenever a cycle starts or stops.
// It must be called before Run.
func (p *Pipeline) OnStateChange(fn func(running bool)) {
	p.stateHook = fn
}

// Phrases returns the recognition phrases used by every cycle
func (p *Pipeline) Phrases() []string {
	return p.config.Recognition.Phrases
}

// Run executes transcription cycles until ctx is done. Whatever ends a
// cycle, the pipeline is rebuilt from scratch after a restart delay that
// doubles up to MaxRestartDelay and is reset by any cycle that received
// responses. Run only returns ctx's error.
func (p *Pipeline) Run(ctx context.Context) error {
	delay := p.config.RestartDelay

	for {
		before, _ := p.responseCounts()
		err := p.RunCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("Pipeline stopped", slog.Uint64("cycles", p.cycles.Load()))
			return ctx.Err()
		}

		if after, _ := p.responseCounts(); after > before {
			delay = p.config.RestartDelay
		}

		if err != nil {
			p.logger.Error("Transcription cycle failed",
				slog.String("kind", errkind.Kind(err)),
				slog.String("error", err.Error()),
				slog.Duration("restart_in", delay),
			)
		} else {
			p.logger.Info("Transcription cycle ended",
				slog.Duration("restart_in", delay),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("Pipeline stopped", slog.Uint64("cycles", p.cycles.Load()))
			return ctx.Err()
		case <-timer.C:
		}

		p.restarts.Add(1)
		p.metrics.RecordRestart()
		delay = min(delay*2, p.config.MaxRestartDelay)
	}
}

// RunCycle runs one transcription cycle. Every cycle gets its own capture
// buffer, segmenter, batcher and multiplexer. It returns nil when the capture
// source and the recognition stream end normally. Cancelling ctx interrupts
// capture, which is the only cancellation path into the capture side.
func (p *Pipeline) RunCycle(ctx context.Context) (err error) {
	cycleID := uuid.NewString()
	logger := p.base.With(slog.String("cycle_id", cycleID))
	start := time.Now()

	var batcher batch.Batcher
	if p.deps.NewBatcher != nil {
		batcher = p.deps.NewBatcher()
	}
	mux := transcription.NewMultiplexer(p.deps.Processor, batcher, transcription.ReporterFunc(p.reportFinal), logger, p.metrics)

	p.cycles.Add(1)
	p.setRunning(cycleID, start, mux)
	p.metrics.RecordCycleStarted()
	p.logger.Info("Transcription cycle started", slog.String("cycle_id", cycleID))

	defer func() {
		failure := err
		if ctx.Err() != nil {
			failure = nil
		}
		kind := ""
		if failure != nil {
			kind = errkind.Kind(failure)
		}
		p.metrics.RecordCycleEnded(time.Since(start).Seconds(), kind)
		p.setStopped(failure)
		p.logger.Debug("Transcription cycle finished",
			slog.String("cycle_id", cycleID),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	return audio.WithStreamer(p.deps.Driver, p.config.Streamer, logger, p.metrics, func(s *audio.Streamer) error {
		stop := context.AfterFunc(ctx, s.Interrupt)
		defer stop()

		requests, err := p.requests(s, cycleID, logger)
		if err != nil {
			return err
		}

		stream, err := p.deps.Recognizer.StreamingRecognize(ctx, p.config.Recognition, requests)
		if err != nil {
			return fmt.Errorf("start recognition: %w", err)
		}
		defer stream.Close()

		return mux.Run(ctx, stream)
	})
}

// requests builds the request source of a cycle over the capture stream
func (p *Pipeline) requests(s *audio.Streamer, cycleID string, logger *slog.Logger) (transcription.RequestSource, error) {
	p.mu.Lock()
	p.streamer = s
	p.segmenter = nil
	p.mu.Unlock()

	if p.config.Segmentation == nil {
		return transcription.ChunkRequests(s), nil
	}

	seg, err := vad.NewSegmenter(s, *p.config.Segmentation, p.deps.Classifier, logger, p.metrics)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.segmenter = seg
	p.mu.Unlock()

	var onSegment func([]byte)
	if p.config.DumpDir != "" {
		seq := 0
		onSegment = func(pcm []byte) {
			seq++
			p.dumpSegment(cycleID, seq, pcm, logger)
		}
	}

	return transcription.SegmentRequests(seg, onSegment), nil
}

// dumpSegment writes a voiced segment as a WAV file. Failures are logged and
// do not end the cycle.
func (p *Pipeline) dumpSegment(cycleID string, seq int, pcm []byte, logger *slog.Logger) {
	path := filepath.Join(p.config.DumpDir, fmt.Sprintf("%s-%04d.wav", cycleID, seq))

	err := writeSegment(path, pcm, p.config.Streamer.SampleRate)
	if err != nil {
		p.dumpFailed.Add(1)
		logger.Warn("Failed to dump segment",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	p.dumped.Add(1)
	logger.Debug("Segment dumped",
		slog.String("path", path),
		slog.Int("bytes", len(pcm)),
	)
}

func writeSegment(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := audio.WriteWAV(f, pcm, sampleRate); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

func (p *Pipeline) reportFinal(text string, confidence int) {
	p.mu.Lock()
	p.lastFinal = text
	p.lastConf = confidence
	p.mu.Unlock()

	p.reporter.ReportFinal(text, confidence)
}

func (p *Pipeline) setRunning(cycleID string, start time.Time, mux *transcription.Multiplexer) {
	p.mu.Lock()
	p.running = true
	p.cycleID = cycleID
	p.startedAt = start
	p.mux = mux
	p.mu.Unlock()

	if p.stateHook != nil {
		p.stateHook(true)
	}
}

func (p *Pipeline) setStopped(err error) {
	p.mu.Lock()
	p.running = false
	if p.mux != nil {
		p.responses += p.mux.Responses()
		p.handled += p.mux.Handled()
		p.mux = nil
	}
	if err != nil {
		p.lastError = err
	}
	p.mu.Unlock()

	if p.stateHook != nil {
		p.stateHook(false)
	}
}

// responseCounts returns the responses seen and handled across all cycles
func (p *Pipeline) responseCounts() (uint64, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.responseCountsLocked()
}

func (p *Pipeline) responseCountsLocked() (uint64, uint64) {
	responses, handled := p.responses, p.handled
	if p.mux != nil {
		responses += p.mux.Responses()
		handled += p.mux.Handled()
	}
	return responses, handled
}

// GetStatus returns a snapshot of the pipeline state
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	responses, handled := p.responseCountsLocked()

	status := Status{
		Running:         p.running,
		Cycles:          p.cycles.Load(),
		Restarts:        p.restarts.Load(),
		LastTranscript:  p.lastFinal,
		LastConfidence:  p.lastConf,
		Responses:       responses,
		Handled:         handled,
		SegmentsDumped:  p.dumped.Load(),
		DumpFailures:    p.dumpFailed.Load(),
		SegmentationOn:  p.config.Segmentation != nil,
		RecognitionLang: p.config.Recognition.LanguageCode,
	}

	if p.running {
		status.CycleID = p.cycleID
		started := p.startedAt
		status.CycleStarted = &started
	}

	if p.lastError != nil {
		status.LastError = p.lastError.Error()
		status.LastErrorKind = errkind.Kind(p.lastError)
	}

	if p.streamer != nil {
		capture := p.streamer.GetStats()
		status.Capture = &capture
	}

	if p.segmenter != nil {
		seg := p.segmenter.GetStats()
		status.Segmenter = &seg
	}

	return status
}
