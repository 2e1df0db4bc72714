package batch

import (
	"context"
	"log/slog"
	"strings"
)

// LogProcessor writes every batch to the log. It is the default processor
// when no downstream consumer is configured.
type LogProcessor struct {
	logger  *slog.Logger
	phrases []string
}

// NewLogProcessor creates a processor that logs batches. phrases are
// reported through Phrases so that they reach the recognizer.
func NewLogProcessor(logger *slog.Logger, phrases []string) *LogProcessor {
	return &LogProcessor{
		logger:  logger.With("component", "batch"),
		phrases: phrases,
	}
}

// Process implements Processor
func (p *LogProcessor) Process(ctx context.Context, texts []string, reset bool) error {
	p.logger.InfoContext(ctx, "Text batch",
		slog.String("text", strings.Join(texts, " ")),
		slog.Int("items", len(texts)),
		slog.Bool("reset", reset),
	)
	return nil
}

// Phrases implements PhraseProvider
func (p *LogProcessor) Phrases() []string {
	return p.phrases
}
