package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "rollcall:events:"

// RedisBus implements Bus over Redis pub/sub so the API server and the
// aggregation worker can run as separate processes.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus builds a bus on the shared redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

var _ Bus = (*RedisBus)(nil)

// Publish sends the event as JSON on the session's channel.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+evt.SessionID, payload).Err()
}

// Subscribe streams events from the session's channel. Messages that do
// not decode are dropped with a log line.
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	sub := b.client.Subscribe(ctx, channelPrefix+sessionID)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 32)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("events: bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}

// SubscribeAll streams events for every session via pattern subscribe.
// Used by the aggregation worker, which routes on Event.SessionID.
func (b *RedisBus) SubscribeAll(ctx context.Context) (<-chan Event, func(), error) {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("events: bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}
