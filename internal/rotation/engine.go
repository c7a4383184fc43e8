// Package rotation runs the per-session rotating-token task. While a
// qr_code session is open exactly one goroutine mints a fresh token every
// interval and persists it as the session's current token.
package rotation

import (
	"context"
	"log"
	"sync"
	"time"

	"rollcall/internal/metrics"
	"rollcall/internal/token"
)

// TokenWriter persists the freshly minted token. Implemented by the
// session store.
type TokenWriter interface {
	SetToken(ctx context.Context, sessionID, tok string) error
}

// Publisher receives every minted token for live displays. Optional.
type Publisher interface {
	PublishToken(sessionID, tok string)
}

// Engine owns one cancellable rotation task per open session. The task's
// lifetime is tied to the session, never to a display connection.
type Engine struct {
	writer   TokenWriter
	pub      Publisher
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. pub may be nil.
func New(writer TokenWriter, pub Publisher, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Engine{
		writer:   writer,
		pub:      pub,
		interval: interval,
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the rotation task for the session. A task already
// running for the same session id is stopped first, so at most one
// writer of current_token exists per session.
func (e *Engine) Start(sessionID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[sessionID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancels[sessionID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(ctx, sessionID)
}

// Stop cancels the session's rotation task if one is running. No token
// is minted after Stop returns control to the ticker.
func (e *Engine) Stop(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[sessionID]; ok {
		cancel()
		delete(e.cancels, sessionID)
	}
}

// Shutdown stops every task and waits for the goroutines to drain.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for id, cancel := range e.cancels {
		cancel()
		delete(e.cancels, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Running reports whether a rotation task exists for the session.
func (e *Engine) Running(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancels[sessionID]
	return ok
}

func (e *Engine) run(ctx context.Context, sessionID string) {
	defer e.wg.Done()

	// Mint immediately so a display has a token before the first tick.
	e.rotate(ctx, sessionID)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.rotate(ctx, sessionID)
		}
	}
}

// rotate mints and persists one token. A failed write is logged and the
// loop keeps its cadence; the verifier always re-reads store state, so a
// lagging write only shortens the effective window of the stale token.
func (e *Engine) rotate(ctx context.Context, sessionID string) {
	if ctx.Err() != nil {
		return
	}
	tok, err := token.Mint(sessionID, e.now())
	if err != nil {
		log.Printf("rotation: mint failed for session %s: %v", sessionID, err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := e.writer.SetToken(writeCtx, sessionID, tok); err != nil {
		log.Printf("rotation: persist failed for session %s: %v", sessionID, err)
		return
	}
	metrics.TokensRotated.Inc()
	if e.pub != nil {
		e.pub.PublishToken(sessionID, tok)
	}
}
