package logging

import "sync"

// DefaultBufferSize is the capacity of the TUI log buffer.
const DefaultBufferSize = 100

// LogBuffer is a fixed-size ring of recent log entries.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding at most size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// Add stores entry, evicting the oldest one when full.
func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of stored entries.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len()
}

func (b *LogBuffer) len() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Last returns up to n most recent entries, oldest first.
func (b *LogBuffer) Last(n int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.len()
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	out := make([]LogEntry, n)
	size := len(b.entries)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(b.next-n+i+size)%size]
	}
	return out
}
