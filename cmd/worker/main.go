package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/record"
	"rollcall/internal/store"
)

const summaryTTL = 24 * time.Hour

// Worker consumes record-change events and refolds each touched
// session's summary from authoritative store state, caching the snapshot
// in Redis. Events are at-least-once and unordered; refolding on every
// event makes duplicates and reordering harmless.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	bus := events.NewRedisBus(redisClient.Client)
	records := record.NewRepository(db.Client)

	stream, stop, err := bus.SubscribeAll(ctx)
	if err != nil {
		log.Fatalf("event subscribe failed: %v", err)
	}
	defer stop()

	log.Println("aggregation worker started, waiting for record events...")
	for evt := range stream {
		recs, err := records.ListBySession(ctx, evt.SessionID)
		if err != nil {
			log.Printf("refold fetch failed for session %s: %v", evt.SessionID, err)
			continue
		}
		sum := record.Summarize(evt.SessionID, recs)

		payload, err := json.Marshal(sum)
		if err != nil {
			log.Printf("summary marshal failed for session %s: %v", evt.SessionID, err)
			continue
		}
		if err := redisClient.Client.Set(ctx, "rollcall:summary:"+evt.SessionID, payload, summaryTTL).Err(); err != nil {
			log.Printf("summary cache write failed for session %s: %v", evt.SessionID, err)
			continue
		}
		log.Printf("session %s: %s by %s, summary refolded (%d verified, %d pending)",
			evt.SessionID, evt.Kind, evt.StudentID, sum.VerifiedTotal, len(sum.Pending))
	}

	log.Println("worker stopped")
}
