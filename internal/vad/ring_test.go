package vad

import (
	"bytes"
	"testing"
)

func TestRingNeverExceedsCapacity(t *testing.T) {
	ring := NewRing(5)

	for i := 0; i < 23; i++ {
		ring.Push([]byte{byte(i)}, i%3 == 0)
		if ring.Len() > ring.Cap() {
			t.Fatalf("Ring holds %d frames, capacity %d", ring.Len(), ring.Cap())
		}
	}

	// Frames 18..22 remain, oldest first
	frames := ring.Frames()
	expected := [][]byte{{18}, {19}, {20}, {21}, {22}}
	for i := range expected {
		if !bytes.Equal(frames[i], expected[i]) {
			t.Errorf("Frame %d: expected %v, got %v", i, expected[i], frames[i])
		}
	}

	// 18 and 21 are multiples of 3
	if ring.Voiced() != 2 || ring.Unvoiced() != 3 {
		t.Errorf("Expected 2 voiced / 3 unvoiced, got %d / %d", ring.Voiced(), ring.Unvoiced())
	}
}

func TestRingCountsTrackEviction(t *testing.T) {
	ring := NewRing(3)

	ring.Push([]byte{0}, true)
	ring.Push([]byte{1}, true)
	ring.Push([]byte{2}, true)
	if ring.Voiced() != 3 {
		t.Fatalf("Expected 3 voiced, got %d", ring.Voiced())
	}

	ring.Push([]byte{3}, false)
	if ring.Voiced() != 2 || ring.Unvoiced() != 1 {
		t.Errorf("Expected 2 voiced / 1 unvoiced after eviction, got %d / %d", ring.Voiced(), ring.Unvoiced())
	}
}

func TestRingReset(t *testing.T) {
	ring := NewRing(4)
	ring.Push([]byte{1}, true)
	ring.Push([]byte{2}, false)

	ring.Reset()

	if ring.Len() != 0 || ring.Voiced() != 0 || len(ring.Frames()) != 0 {
		t.Errorf("Expected empty ring after reset, got len %d voiced %d", ring.Len(), ring.Voiced())
	}

	ring.Push([]byte{3}, true)
	if frames := ring.Frames(); len(frames) != 1 || frames[0][0] != 3 {
		t.Errorf("Unexpected frames after reset: %v", frames)
	}
}

func TestNewRingPanicsOnInvalidCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for zero capacity")
		}
	}()
	NewRing(0)
}
