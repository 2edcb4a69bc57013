// Package configsync keeps the live RuleBook in step with the rule
// repository and publishes each new snapshot to the engine.
package configsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/psaab/slotstrike/pkg/rules"
)

// ErrNoSubscribers is returned by Publish when every subscriber is gone.
var ErrNoSubscribers = errors.New("no rulebook subscribers")

// Broadcast is a single-slot publisher: readers always see the latest
// snapshot and intermediate snapshots may be skipped.
type Broadcast struct {
	cur atomic.Pointer[rules.RuleBook]

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is notified on C (coalesced) whenever a new snapshot is
// published.
type Subscription struct {
	C  <-chan struct{}
	c  chan struct{}
	bc *Broadcast
}

// NewBroadcast seeds the slot with initial.
func NewBroadcast(initial *rules.RuleBook) *Broadcast {
	if initial == nil {
		initial = rules.Empty()
	}
	b := &Broadcast{subs: make(map[*Subscription]struct{})}
	b.cur.Store(initial)
	return b
}

// Load returns the current snapshot.
func (b *Broadcast) Load() *rules.RuleBook { return b.cur.Load() }

// Subscribe registers a receiver.
func (b *Broadcast) Subscribe() *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, bc: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.bc.mu.Lock()
	delete(s.bc.subs, s)
	s.bc.mu.Unlock()
}

// Load returns the current snapshot.
func (s *Subscription) Load() *rules.RuleBook { return s.bc.Load() }

// Watch calls fn with the current snapshot after every notification on C
// until ctx is cancelled. Coalesced notifications yield one call.
func (s *Subscription) Watch(ctx context.Context, fn func(*rules.RuleBook)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.C:
			fn(s.Load())
		}
	}
}

// Publish replaces the snapshot and notifies subscribers. With no
// subscribers the snapshot is left unchanged and ErrNoSubscribers is
// returned.
func (b *Broadcast) Publish(rb *rules.RuleBook) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}
	b.cur.Store(rb)
	for s := range b.subs {
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcast) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
