package configsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/psaab/slotstrike/pkg/rules"
)

// HistoryEntry records one published RuleBook.
type HistoryEntry struct {
	Book      *rules.RuleBook
	Timestamp time.Time
	Changes   []rules.Change
}

// History is a ring of recently published snapshots. Safe for concurrent
// use.
type History struct {
	mu      sync.RWMutex
	entries []*HistoryEntry
	maxSize int
}

// NewHistory creates a History holding at most maxSize entries.
func NewHistory(maxSize int) *History {
	return &History{maxSize: max(maxSize, 1)}
}

// Push appends an entry, evicting the oldest when full.
func (h *History) Push(entry *HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Get returns the nth most recent entry (0 = most recent).
func (h *History) Get(n int) (*HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n < 0 || n >= len(h.entries) {
		return nil, fmt.Errorf("rulebook revision %d: not in history (have %d entries)", n, len(h.entries))
	}
	return h.entries[len(h.entries)-1-n], nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// List returns all entries, most recent first.
func (h *History) List() []*HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}
