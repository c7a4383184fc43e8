package rotation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/token"
)

type fakeWriter struct {
	mu     sync.Mutex
	tokens map[string][]string
	fail   bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{tokens: make(map[string][]string)}
}

func (w *fakeWriter) SetToken(_ context.Context, sessionID, tok string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return assert.AnError
	}
	w.tokens[sessionID] = append(w.tokens[sessionID], tok)
	return nil
}

func (w *fakeWriter) count(sessionID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tokens[sessionID])
}

func (w *fakeWriter) last(sessionID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	toks := w.tokens[sessionID]
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}

func (w *fakeWriter) setFail(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = fail
}

type fakePublisher struct {
	mu   sync.Mutex
	seen int
}

func (p *fakePublisher) PublishToken(string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen++
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEngineMintsImmediatelyAndOnCadence(t *testing.T) {
	writer := newFakeWriter()
	pub := &fakePublisher{}
	engine := New(writer, pub, 20*time.Millisecond)
	defer engine.Shutdown()

	engine.Start("sess-1")
	waitFor(t, func() bool { return writer.count("sess-1") >= 3 })
	assert.GreaterOrEqual(t, pub.count(), 3)

	// Tokens are well formed and carry the session id.
	raw := writer.last("sess-1")
	payload, err := token.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", payload.SessionID)
	assert.True(t, strings.HasPrefix(raw, "ATTEND:sess-1:"))
}

func TestEngineStopHaltsMinting(t *testing.T) {
	writer := newFakeWriter()
	engine := New(writer, nil, 10*time.Millisecond)
	defer engine.Shutdown()

	engine.Start("sess-1")
	waitFor(t, func() bool { return writer.count("sess-1") >= 2 })

	engine.Stop("sess-1")
	assert.False(t, engine.Running("sess-1"))

	// No further tokens after the task drains.
	time.Sleep(30 * time.Millisecond)
	n := writer.count("sess-1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, writer.count("sess-1"))
}

func TestEngineSingleRunnerPerSession(t *testing.T) {
	writer := newFakeWriter()
	engine := New(writer, nil, 10*time.Millisecond)
	defer engine.Shutdown()

	engine.Start("sess-1")
	engine.Start("sess-1")
	engine.Start("sess-1")
	assert.True(t, engine.Running("sess-1"))

	// Only the latest task survives: after Stop nothing keeps minting.
	engine.Stop("sess-1")
	time.Sleep(30 * time.Millisecond)
	n := writer.count("sess-1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, writer.count("sess-1"))
}

func TestEngineSurvivesPersistFailures(t *testing.T) {
	writer := newFakeWriter()
	engine := New(writer, nil, 10*time.Millisecond)
	defer engine.Shutdown()

	writer.setFail(true)
	engine.Start("sess-1")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, writer.count("sess-1"))

	// Writes resume on the next tick once the store recovers.
	writer.setFail(false)
	waitFor(t, func() bool { return writer.count("sess-1") >= 1 })
}

func TestEngineIndependentSessions(t *testing.T) {
	writer := newFakeWriter()
	engine := New(writer, nil, 10*time.Millisecond)
	defer engine.Shutdown()

	engine.Start("sess-1")
	engine.Start("sess-2")
	waitFor(t, func() bool { return writer.count("sess-1") >= 1 && writer.count("sess-2") >= 1 })

	engine.Stop("sess-1")
	assert.False(t, engine.Running("sess-1"))
	assert.True(t, engine.Running("sess-2"))
}

func TestShutdownStopsEverything(t *testing.T) {
	writer := newFakeWriter()
	engine := New(writer, nil, 10*time.Millisecond)

	engine.Start("sess-1")
	engine.Start("sess-2")
	engine.Shutdown()

	assert.False(t, engine.Running("sess-1"))
	assert.False(t, engine.Running("sess-2"))
}
