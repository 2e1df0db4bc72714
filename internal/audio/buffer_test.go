package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestCaptureBufferPullCoalesces(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)

	frames := [][]byte{{1, 2}, {3, 4}, {5, 6}}
	for _, f := range frames {
		if err := buffer.Push(f); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	chunk, err := buffer.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	expected := []byte{1, 2, 3, 4, 5, 6}
	if !bytes.Equal(chunk, expected) {
		t.Errorf("Expected chunk %v, got %v", expected, chunk)
	}

	stats := buffer.GetStats()
	if stats.FramesPushed != 3 || stats.FramesPulled != 3 || stats.ChunksPulled != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Queued != 0 {
		t.Errorf("Expected empty queue, got %d frames", stats.Queued)
	}
}

func TestCaptureBufferCopiesFrames(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)

	frame := []byte{7, 7}
	if err := buffer.Push(frame); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	frame[0] = 0

	chunk, err := buffer.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if chunk[0] != 7 {
		t.Error("Queued frame was modified through the caller's slice")
	}
}

func TestCaptureBufferCloseBeforePush(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)
	buffer.Close()

	if _, err := buffer.Pull(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	if err := buffer.Push([]byte{1, 2}); !errors.Is(err, ErrBufferClosed) {
		t.Errorf("Expected ErrBufferClosed, got %v", err)
	}

	// End of stream is sticky
	if _, err := buffer.Pull(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF on second pull, got %v", err)
	}

	// Close is idempotent
	buffer.Close()
	if !buffer.IsClosed() {
		t.Error("Expected buffer to report closed")
	}
}

func TestCaptureBufferDeliversQueuedFramesBeforeEOF(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)
	buffer.Push([]byte{1, 2})
	buffer.Push([]byte{3, 4})
	buffer.Close()

	chunk, err := buffer.Pull(context.Background())
	if err != nil {
		t.Fatalf("Expected queued audio before EOF, got %v", err)
	}
	if !bytes.Equal(chunk, []byte{1, 2, 3, 4}) {
		t.Errorf("Unexpected chunk %v", chunk)
	}

	if _, err := buffer.Pull(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after drain, got %v", err)
	}
}

func TestCaptureBufferPullBlocksUntilPush(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		buffer.Push([]byte{9, 9})
	}()

	start := time.Now()
	chunk, err := buffer.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !bytes.Equal(chunk, []byte{9, 9}) {
		t.Errorf("Unexpected chunk %v", chunk)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Pull returned before any frame was pushed")
	}
}

func TestCaptureBufferCloseWakesPull(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)

	done := make(chan error, 1)
	go func() {
		_, err := buffer.Pull(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	buffer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Expected io.EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull was not released by Close")
	}
}

func TestCaptureBufferPullHonorsContext(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := buffer.Pull(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestCaptureBufferBoundedDropsOldest(t *testing.T) {
	buffer := NewCaptureBuffer(2, nil)

	for _, f := range [][]byte{{1}, {2}, {3}} {
		if err := buffer.Push(f); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	chunk, err := buffer.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if !bytes.Equal(chunk, []byte{2, 3}) {
		t.Errorf("Expected newest frames [2 3], got %v", chunk)
	}
	if dropped := buffer.GetStats().FramesDropped; dropped != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", dropped)
	}
}

func TestCaptureBufferConcurrentProducer(t *testing.T) {
	buffer := NewCaptureBuffer(0, nil)
	const numFrames = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numFrames; i++ {
			buffer.Push([]byte{byte(i), byte(i >> 8)})
		}
		buffer.Close()
	}()

	var total int
	for {
		chunk, err := buffer.Pull(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Pull failed: %v", err)
		}
		total += len(chunk)
	}
	wg.Wait()

	if total != numFrames*2 {
		t.Errorf("Expected %d bytes, got %d", numFrames*2, total)
	}
}
