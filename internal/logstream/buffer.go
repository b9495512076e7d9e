// Package logstream keeps a bounded ring of recent agent log lines, seeded
// from the agent's log tail and extended by its live event stream.
package logstream

import "sync"

// Buffer is a fixed-capacity FIFO of lines. Appending to a full buffer
// evicts exactly the oldest line.
type Buffer struct {
	mu       sync.RWMutex
	lines    []string
	start    int
	size     int
	capacity int
}

// NewBuffer creates a Buffer holding at most capacity lines.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{lines: make([]string, capacity), capacity: capacity}
}

// Append adds line and reports whether an old line was evicted.
func (b *Buffer) Append(line string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.lines[(b.start+b.size)%b.capacity] = line
		b.size++
		return false
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.capacity
	return true
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.start+i)%b.capacity]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		b.lines[i] = ""
	}
	b.start, b.size = 0, 0
}
