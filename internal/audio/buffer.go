package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/imbesat-rizvi/imperio/internal/metrics"
)

// ErrBufferClosed is returned by Push once the buffer has been closed.
var ErrBufferClosed = errors.New("capture buffer closed")

// CaptureBuffer hands audio frames from the device's fill callback (producer)
// to a single pulling consumer. Push never blocks; Pull blocks until audio is
// queued or the buffer is closed.
type CaptureBuffer struct {
	frames    [][]byte
	closed    bool
	maxFrames int // 0 = unbounded

	// wake carries at most one pending wake-up for a blocked Pull
	wake chan struct{}

	// Statistics
	framesPushed  uint64
	framesPulled  uint64
	framesDropped uint64
	chunksPulled  uint64
	lastPush      time.Time

	metrics *metrics.Metrics
	mu      sync.Mutex
}

// CaptureStats represents capture buffer statistics for monitoring
type CaptureStats struct {
	FramesPushed  uint64    `json:"frames_pushed"`
	FramesPulled  uint64    `json:"frames_pulled"`
	FramesDropped uint64    `json:"frames_dropped"`
	ChunksPulled  uint64    `json:"chunks_pulled"`
	Queued        int       `json:"queued_frames"`
	Closed        bool      `json:"closed"`
	LastPush      time.Time `json:"last_push"`
}

// NewCaptureBuffer creates an open capture buffer. When maxFrames is positive
// the queue is bounded: pushing onto a full queue drops the oldest frame.
func NewCaptureBuffer(maxFrames int, m *metrics.Metrics) *CaptureBuffer {
	if maxFrames < 0 {
		maxFrames = 0
	}
	return &CaptureBuffer{
		maxFrames: maxFrames,
		wake:      make(chan struct{}, 1),
		metrics:   m,
	}
}

// Push appends a copy of frame to the queue. It is safe to call from the
// device callback context and never blocks.
func (b *CaptureBuffer) Push(frame []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}

	dropped := false
	if b.maxFrames > 0 && len(b.frames) >= b.maxFrames {
		b.frames[0] = nil
		b.frames = b.frames[1:]
		b.framesDropped++
		dropped = true
	}

	owned := make([]byte, len(frame))
	copy(owned, frame)
	b.frames = append(b.frames, owned)
	b.framesPushed++
	b.lastPush = time.Now()
	queued := len(b.frames)
	b.mu.Unlock()

	b.signal()

	b.metrics.RecordFrameCaptured(len(frame), queued)
	if dropped {
		b.metrics.RecordFrameDropped()
	}
	return nil
}

// Pull blocks until at least one frame is available, then drains every
// queued frame and returns them coalesced into a single chunk. Frames queued
// before Close are still delivered; afterwards Pull returns io.EOF on this and
// every later call.
func (b *CaptureBuffer) Pull(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if len(b.frames) > 0 {
			chunk, count := coalesce(b.frames)
			b.frames = nil
			b.framesPulled += uint64(count)
			b.chunksPulled++
			b.mu.Unlock()
			return chunk, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, io.EOF
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close marks the buffer closed and releases a blocked Pull. It is idempotent.
func (b *CaptureBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.signal()
}

// IsClosed returns whether Close has been called
func (b *CaptureBuffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of frames currently queued
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// GetStats returns current buffer statistics
func (b *CaptureBuffer) GetStats() CaptureStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return CaptureStats{
		FramesPushed:  b.framesPushed,
		FramesPulled:  b.framesPulled,
		FramesDropped: b.framesDropped,
		ChunksPulled:  b.chunksPulled,
		Queued:        len(b.frames),
		Closed:        b.closed,
		LastPush:      b.lastPush,
	}
}

func (b *CaptureBuffer) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// coalesce joins frames into one contiguous chunk
func coalesce(frames [][]byte) ([]byte, int) {
	if len(frames) == 1 {
		return frames[0], 1
	}

	size := 0
	for _, f := range frames {
		size += len(f)
	}

	chunk := make([]byte, 0, size)
	for _, f := range frames {
		chunk = append(chunk, f...)
	}
	return chunk, len(frames)
}
