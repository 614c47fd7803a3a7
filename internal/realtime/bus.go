// Package realtime publishes best-effort progress events over Redis Pub/Sub.
//
// Delivery is not guaranteed and nothing in the pipeline gates on it: the
// database is the only authoritative state, clients reconcile against it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentpipe/sourcing/internal/logger"
)

// Event names emitted on search channels.
const (
	EventScoringStarted   = "scoring.started"
	EventScoringProgress  = "scoring.progress"
	EventScoringCompleted = "scoring.completed"
	EventStrategyUpdated  = "strategy.updated"
)

const emitTimeout = 5 * time.Second

// Bus is a best-effort pub/sub notification channel.
type Bus interface {
	// Emit publishes an event on a channel. Errors are logged, never returned:
	// callers must not couple correctness to delivery.
	Emit(ctx context.Context, channel, event string, payload any)
}

// SearchChannel returns the per-search channel name.
func SearchChannel(searchID string) string {
	return "search:" + searchID
}

// RedisBus publishes events over Redis Pub/Sub.
type RedisBus struct {
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisBus creates a bus on an existing Redis client.
func NewRedisBus(client redis.UniversalClient, log logger.Logger) *RedisBus {
	return &RedisBus{client: client, logger: log}
}

// envelope is the wire format of a bus message.
type envelope struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Emit publishes one event. Best effort: marshal or publish failures are
// logged and dropped.
func (b *RedisBus) Emit(ctx context.Context, channel, event string, payload any) {
	message, err := json.Marshal(envelope{
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to encode realtime event",
			logger.String("channel", channel),
			logger.String("event", event),
			logger.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	if err := b.client.Publish(pubCtx, channel, message).Err(); err != nil {
		b.logger.Warn("failed to publish realtime event",
			logger.String("channel", channel),
			logger.String("event", event),
			logger.Error(err))
	}
}

// NewRedisClient connects a Redis client and verifies connectivity.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
