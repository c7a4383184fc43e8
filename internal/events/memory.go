package events

import (
	"context"
	"log"
	"sync"
)

// MemoryBus is a channel-backed Bus for dev/testing and single-process
// deployments.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan Event]struct{})}
}

var _ Bus = (*MemoryBus)(nil)

// Publish fans the event out to the session's subscribers. A subscriber
// that cannot keep up has the event dropped rather than blocking the
// writer; consumers recompute from store state, so a dropped event only
// delays convergence until the next one.
func (b *MemoryBus) Publish(_ context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
			log.Printf("events: dropping event for slow subscriber on session %s", evt.SessionID)
		}
	}
	return nil
}

// Subscribe registers a buffered channel for the session.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			b.mu.Unlock()
			close(done)
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}
