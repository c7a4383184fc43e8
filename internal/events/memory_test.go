package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversPerSession(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch1, stop1, err := bus.Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer stop1()
	ch2, stop2, err := bus.Subscribe(ctx, "sess-2")
	require.NoError(t, err)
	defer stop2()

	require.NoError(t, bus.Publish(ctx, Event{SessionID: "sess-1", StudentID: "alice", Kind: KindInsert}))

	select {
	case evt := <-ch1:
		assert.Equal(t, "alice", evt.StudentID)
		assert.Equal(t, KindInsert, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 got nothing")
	}

	select {
	case evt := <-ch2:
		t.Fatalf("subscriber 2 should see nothing, got %+v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryBusFanout(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	chA, stopA, err := bus.Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer stopA()
	chB, stopB, err := bus.Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer stopB()

	require.NoError(t, bus.Publish(ctx, Event{SessionID: "sess-1", Kind: KindDelete}))

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case evt := <-ch:
			assert.Equal(t, KindDelete, evt.Kind)
		case <-time.After(time.Second):
			t.Fatal("fanout missed a subscriber")
		}
	}
}

func TestMemoryBusStopClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	ch, stop, err := bus.Subscribe(context.Background(), "sess-1")
	require.NoError(t, err)

	stop()
	stop() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after stop is a no-op, not a panic.
	require.NoError(t, bus.Publish(context.Background(), Event{SessionID: "sess-1"}))
}

func TestMemoryBusContextCancelStops(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := bus.Subscribe(ctx, "sess-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestMemoryBusDropsWhenSubscriberStalls(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	ch, stop, err := bus.Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer stop()

	// Fill the buffer past capacity without reading; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, Event{SessionID: "sess-1", Kind: KindInsert})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.NotEmpty(t, ch)
}
