package vad

// ringEntry is one classified frame
type ringEntry struct {
	frame  []byte
	speech bool
}

// Ring is a fixed-capacity FIFO of classified frames. Pushing onto a full
// ring evicts the oldest entry, so Len never exceeds Cap.
type Ring struct {
	entries []ringEntry
	head    int // index of the oldest entry
	size    int
	voiced  int
}

// NewRing creates a ring holding at most capacity frames. capacity must be
// positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("vad: ring capacity must be positive")
	}
	return &Ring{entries: make([]ringEntry, capacity)}
}

// Push appends a classified frame, evicting the oldest one when full
func (r *Ring) Push(frame []byte, speech bool) {
	capacity := len(r.entries)

	if r.size == capacity {
		if r.entries[r.head].speech {
			r.voiced--
		}
		r.entries[r.head] = ringEntry{}
		r.head = (r.head + 1) % capacity
		r.size--
	}

	r.entries[(r.head+r.size)%capacity] = ringEntry{frame: frame, speech: speech}
	r.size++
	if speech {
		r.voiced++
	}
}

// Len returns the number of frames held
func (r *Ring) Len() int { return r.size }

// Cap returns the configured capacity
func (r *Ring) Cap() int { return len(r.entries) }

// Voiced returns the number of held frames classified as speech
func (r *Ring) Voiced() int { return r.voiced }

// Unvoiced returns the number of held frames classified as non-speech
func (r *Ring) Unvoiced() int { return r.size - r.voiced }

// Frames returns the held frames, oldest first
func (r *Ring) Frames() [][]byte {
	frames := make([][]byte, r.size)
	for i := range frames {
		frames[i] = r.entries[(r.head+i)%len(r.entries)].frame
	}
	return frames
}

// Reset removes every frame
func (r *Ring) Reset() {
	clear(r.entries)
	r.head = 0
	r.size = 0
	r.voiced = 0
}
