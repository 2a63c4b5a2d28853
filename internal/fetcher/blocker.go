package fetcher

import (
	"strings"
	"sync"
)

const defaultForbiddenThreshold = 3

// Blocker stops fetches to destinations that keep answering 403 or 429.
// Once blocked a destination stays blocked for the life of the process.
type Blocker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]struct{}
}

// NewBlocker returns a Blocker that trips after threshold forbidden responses.
func NewBlocker(threshold int) *Blocker {
	if threshold <= 0 {
		threshold = defaultForbiddenThreshold
	}
	return &Blocker{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]struct{}),
	}
}

// IsBlocked reports whether host has been blocked.
func (b *Blocker) IsBlocked(host string) bool {
	if b == nil || host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocked[key]
	return ok
}

// MarkForbidden increments the counter for host and returns true once blocked.
func (b *Blocker) MarkForbidden(host string) bool {
	if b == nil || host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, blocked := b.blocked[key]; blocked {
		return true
	}
	b.counts[key]++
	if b.counts[key] >= b.threshold {
		b.blocked[key] = struct{}{}
		return true
	}
	return false
}
