package batch

import (
	"context"
	"reflect"
	"testing"
)

type phraseProcessor struct {
	ProcessorFunc
	phrases []string
}

func (p phraseProcessor) Phrases() []string { return p.phrases }

func TestPhrasesOf(t *testing.T) {
	noop := ProcessorFunc(func(ctx context.Context, texts []string, reset bool) error { return nil })

	if got := PhrasesOf(noop); got != nil {
		t.Errorf("Expected no phrases from a plain processor, got %v", got)
	}

	withPhrases := phraseProcessor{ProcessorFunc: noop, phrases: []string{"lights on"}}
	if got := PhrasesOf(withPhrases); !reflect.DeepEqual(got, []string{"lights on"}) {
		t.Errorf("Unexpected phrases %v", got)
	}
}

func TestMergePhrases(t *testing.T) {
	got := MergePhrases(
		[]string{"lights on", "volume up"},
		nil,
		[]string{" lights on ", "", "wave"},
	)

	expected := []string{"lights on", "volume up", "wave"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestWordBatcher(t *testing.T) {
	type step struct {
		text     string
		reset    bool
		expected []string
	}

	tests := []struct {
		name     string
		minWords int
		steps    []step
	}{
		{
			name:     "emits new words once",
			minWords: 1,
			steps: []step{
				{"turn", false, []string{"turn"}},
				{"turn on", false, []string{"on"}},
				{"turn on", false, nil},
				{"turn on the lights", true, []string{"the", "lights"}},
				{"hello", false, []string{"hello"}},
			},
		},
		{
			name:     "holds back small interim batches",
			minWords: 2,
			steps: []step{
				{"turn", false, nil},
				{"turn on", false, []string{"turn", "on"}},
				{"turn on the", false, nil},
				{"turn on the", true, []string{"the"}},
			},
		},
		{
			name:     "final after everything emitted",
			minWords: 1,
			steps: []step{
				{"stop", false, []string{"stop"}},
				{"stop", true, nil},
				{"go", true, []string{"go"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewWordBatcher(tt.minWords)
			for i, s := range tt.steps {
				got := b.Batch(s.text, s.reset)
				if len(got) == 0 && len(s.expected) == 0 {
					continue
				}
				if !reflect.DeepEqual(got, s.expected) {
					t.Errorf("Step %d (%q): expected %v, got %v", i, s.text, s.expected, got)
				}
			}
		})
	}
}
