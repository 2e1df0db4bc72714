package batch

import (
	"context"
	"strings"
)

// Processor consumes batches of transcribed text. reset is true when the
// batch closes an utterance (the transcript was final).
type Processor interface {
	Process(ctx context.Context, texts []string, reset bool) error
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(ctx context.Context, texts []string, reset bool) error

// Process calls f(ctx, texts, reset)
func (f ProcessorFunc) Process(ctx context.Context, texts []string, reset bool) error {
	return f(ctx, texts, reset)
}

// Batcher turns a stream of interim and final transcripts into batches. It
// may return nil when nothing should be processed yet.
type Batcher interface {
	Batch(text string, reset bool) []string
}

// PhraseProvider is implemented by processors that know phrases the
// recognizer should be biased towards.
type PhraseProvider interface {
	Phrases() []string
}

// PhrasesOf returns the phrases of v if it is a PhraseProvider
func PhrasesOf(v any) []string {
	if p, ok := v.(PhraseProvider); ok {
		return p.Phrases()
	}
	return nil
}

// MergePhrases concatenates phrase lists, dropping blanks and duplicates
// while keeping first-seen order.
func MergePhrases(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, list := range lists {
		for _, phrase := range list {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if _, ok := seen[phrase]; ok {
				continue
			}
			seen[phrase] = struct{}{}
			merged = append(merged, phrase)
		}
	}
	return merged
}

// WordBatcher emits the words of an utterance as soon as interim transcripts
// reveal them. Each word is emitted once per utterance; revisions of words
// already emitted are not reported. A final transcript flushes the rest of
// the utterance and starts a new one.
type WordBatcher struct {
	minWords int
	emitted  int
}

// NewWordBatcher creates a WordBatcher that holds back interim batches
// until at least minWords new words are available.
func NewWordBatcher(minWords int) *WordBatcher {
	if minWords < 1 {
		minWords = 1
	}
	return &WordBatcher{minWords: minWords}
}

// Batch implements Batcher
func (b *WordBatcher) Batch(text string, reset bool) []string {
	words := strings.Fields(text)

	var fresh []string
	if len(words) > b.emitted {
		fresh = words[b.emitted:]
	}

	if reset {
		b.emitted = 0
		return fresh
	}

	if len(fresh) < b.minWords {
		return nil
	}
	b.emitted = len(words)
	return fresh
}
