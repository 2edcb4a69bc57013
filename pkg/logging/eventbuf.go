// Package logging keeps a bounded in-memory record of pool candidates and
// operator alerts for the runtime API.
package logging

import (
	"strings"
	"sync"
	"time"
)

// Record categories.
const (
	CategoryCandidate = "candidate"
	CategoryAlert     = "alert"
)

// Record is one entry in the event buffer.
type Record struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Category string    `json:"category"`         // "candidate", "alert"
	Level    string    `json:"level,omitempty"`  // slog level for alerts
	Message  string    `json:"message,omitempty"`

	// Candidate fields.
	Source      string `json:"source,omitempty"`   // "fpga_dma", "kernel_bypass", ...
	Strategy    string `json:"strategy,omitempty"` // "cpmm", "openbook"
	Signature   string `json:"signature,omitempty"`
	Mint        string `json:"mint,omitempty"`
	Deployer    string `json:"deployer,omitempty"`
	Matched     string `json:"matched,omitempty"` // "mint", "deployer", or empty
	IngressNs   uint64 `json:"ingress_ns,omitempty"`
	SnipeHeight uint64 `json:"snipe_height_lamports,omitempty"`
	MinOut      uint64 `json:"min_amount_out,omitempty"`
}

// EventBuffer is a thread-safe circular buffer of recent records.
type EventBuffer struct {
	mu    sync.RWMutex
	buf   []Record
	size  int
	head  int // next write position
	count int
	seq   uint64

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives records added after it was created.
type Subscription struct {
	C  chan Record
	eb *EventBuffer
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.eb.unsubscribe(s)
}

// NewEventBuffer creates a buffer holding size records.
func NewEventBuffer(size int) *EventBuffer {
	size = max(size, 1)
	return &EventBuffer{
		buf:  make([]Record, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add stores rec, overwriting the oldest record when full, and assigns its
// sequence number. Subscribers are notified non-blocking.
func (eb *EventBuffer) Add(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	eb.mu.Lock()
	eb.seq++
	rec.Seq = eb.seq
	eb.buf[eb.head] = rec
	eb.head = (eb.head + 1) % eb.size
	if eb.count < eb.size {
		eb.count++
	}
	eb.mu.Unlock()

	eb.subMu.RLock()
	for sub := range eb.subs {
		select {
		case sub.C <- rec:
		default: // slow subscriber
		}
	}
	eb.subMu.RUnlock()
}

// Subscribe returns a Subscription with a channel of bufSize.
func (eb *EventBuffer) Subscribe(bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = 64
	}
	sub := &Subscription{
		C:  make(chan Record, bufSize),
		eb: eb,
	}
	eb.subMu.Lock()
	eb.subs[sub] = struct{}{}
	eb.subMu.Unlock()
	return sub
}

func (eb *EventBuffer) unsubscribe(sub *Subscription) {
	eb.subMu.Lock()
	delete(eb.subs, sub)
	eb.subMu.Unlock()
}

// Total returns how many records were ever added.
func (eb *EventBuffer) Total() uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.seq
}

// RecordFilter selects records. Empty fields match everything.
type RecordFilter struct {
	Category string
	Strategy string
	Source   string
}

// IsEmpty reports whether no criteria are set.
func (f RecordFilter) IsEmpty() bool {
	return f.Category == "" && f.Strategy == "" && f.Source == ""
}

// Matches reports whether rec satisfies the filter.
func (f RecordFilter) Matches(rec *Record) bool {
	if f.Category != "" && !strings.EqualFold(rec.Category, f.Category) {
		return false
	}
	if f.Strategy != "" && !strings.EqualFold(rec.Strategy, f.Strategy) {
		return false
	}
	if f.Source != "" && !strings.EqualFold(rec.Source, f.Source) {
		return false
	}
	return true
}

// LatestFiltered returns up to n matching records, newest first.
func (eb *EventBuffer) LatestFiltered(n int, f RecordFilter) []Record {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	var result []Record
	for i := 0; i < eb.count && len(result) < n; i++ {
		idx := (eb.head - 1 - i + eb.size) % eb.size
		if f.Matches(&eb.buf[idx]) {
			result = append(result, eb.buf[idx])
		}
	}
	return result
}

// Latest returns up to n records, newest first.
func (eb *EventBuffer) Latest(n int) []Record {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	n = min(n, eb.count)
	if n <= 0 {
		return nil
	}
	result := make([]Record, n)
	for i := 0; i < n; i++ {
		idx := (eb.head - 1 - i + eb.size) % eb.size
		result[i] = eb.buf[idx]
	}
	return result
}
