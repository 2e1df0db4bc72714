package transcription

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/imbesat-rizvi/imperio/internal/vad"
)

type chunkSlice [][]byte

func (c *chunkSlice) Next(ctx context.Context) ([]byte, error) {
	if len(*c) == 0 {
		return nil, io.EOF
	}
	chunk := (*c)[0]
	*c = (*c)[1:]
	return chunk, nil
}

type itemSlice []vad.Item

func (s *itemSlice) Next(ctx context.Context) (vad.Item, error) {
	if len(*s) == 0 {
		return vad.Item{}, io.EOF
	}
	item := (*s)[0]
	*s = (*s)[1:]
	return item, nil
}

func TestChunkRequests(t *testing.T) {
	chunks := chunkSlice{{1, 2}, {}, {3, 4, 5, 6}}
	source := ChunkRequests(&chunks)

	var sizes []int
	for {
		req, err := source.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if req.EndOfUtterance {
			t.Error("Expected no end-of-utterance markers")
		}
		sizes = append(sizes, len(req.Audio))
	}

	if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 4 {
		t.Errorf("Expected chunk sizes [2 4], got %v", sizes)
	}
}

func TestSegmentRequests(t *testing.T) {
	items := itemSlice{
		{Audio: []byte{1, 1}},
		{Boundary: true},
		{Audio: []byte{}},
		{Audio: []byte{2, 2, 2}},
		{Boundary: true},
	}

	var dumped int
	source := SegmentRequests(&items, func(segment []byte) { dumped++ })

	var got []Request
	for {
		req, err := source.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, req)
	}

	if len(got) != 4 {
		t.Fatalf("Expected 4 requests, got %d", len(got))
	}
	if len(got[0].Audio) != 2 || !got[1].EndOfUtterance || len(got[2].Audio) != 3 || !got[3].EndOfUtterance {
		t.Errorf("Unexpected requests %+v", got)
	}
	if dumped != 2 {
		t.Errorf("Expected 2 segments passed to the callback, got %d", dumped)
	}
}
