package transcription

import (
	"context"

	"github.com/imbesat-rizvi/imperio/internal/vad"
)

// ChunkSource yields captured audio chunks
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// SegmentSource yields voiced segments and boundaries
type SegmentSource interface {
	Next(ctx context.Context) (vad.Item, error)
}

// ChunkRequests streams every captured chunk as an audio request
func ChunkRequests(source ChunkSource) RequestSource {
	return RequestSourceFunc(func(ctx context.Context) (Request, error) {
		for {
			chunk, err := source.Next(ctx)
			if err != nil {
				return Request{}, err
			}
			if len(chunk) > 0 {
				return Request{Audio: chunk}, nil
			}
		}
	})
}

// SegmentRequests streams each voiced segment as an audio request and each
// boundary as an end-of-utterance request. onSegment, if set, is called with
// every segment before it is sent.
func SegmentRequests(source SegmentSource, onSegment func([]byte)) RequestSource {
	return RequestSourceFunc(func(ctx context.Context) (Request, error) {
		for {
			item, err := source.Next(ctx)
			if err != nil {
				return Request{}, err
			}
			if item.Boundary {
				return Request{EndOfUtterance: true}, nil
			}
			if len(item.Audio) == 0 {
				continue
			}
			if onSegment != nil {
				onSegment(item.Audio)
			}
			return Request{Audio: item.Audio}, nil
		}
	})
}
