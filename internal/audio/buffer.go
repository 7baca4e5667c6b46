package audio

import "sync"

// Buffer accumulates captured samples in arrival order. It only grows: samples
// are never removed or rewritten once appended.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
}

// NewBuffer returns an empty buffer with room for capacity samples.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{samples: make([]float32, 0, capacity)}
}

// Append copies block onto the end of the buffer.
func (b *Buffer) Append(block []float32) {
	b.mu.Lock()
	b.samples = append(b.samples, block...)
	b.mu.Unlock()
}

// Len returns the number of samples appended so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Snapshot returns a copy of the current contents.
func (b *Buffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Read calls fn with the buffer contents while holding the buffer lock, so
// large recordings can be consumed without a copy. fn must not retain samples
// or call back into the buffer.
func (b *Buffer) Read(fn func(samples []float32) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.samples)
}
