package telemetry

import (
	"sync"
	"time"
)

// History is an insertion-ordered, capacity-bounded sample log. Appending
// past capacity evicts the oldest entry.
type History struct {
	mu       sync.RWMutex
	samples  []Sample
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

func (h *History) Append(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == h.capacity {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:len(h.samples)-1]
	}
	h.samples = append(h.samples, s)
}

// Snapshot returns a copy of all samples, oldest first.
func (h *History) Snapshot() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Latest returns up to n of the most recent samples, oldest first.
func (h *History) Latest(n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return []Sample{}
	}
	if n > len(h.samples) {
		n = len(h.samples)
	}
	out := make([]Sample, n)
	copy(out, h.samples[len(h.samples)-n:])
	return out
}

// Since returns the samples with a timestamp at or after t.
func (h *History) Since(t time.Time) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Sample
	for _, s := range h.samples {
		if !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

func (h *History) Cap() int {
	return h.capacity
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}
