package reservation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHoldStore mirrors reservation holds to Redis: a hash per hold
// with a TTL, plus an append to a stream so operators can tail hold
// activity. The ledger stays authoritative; entries here are advisory.
type RedisHoldStore struct {
	client    *redis.Client
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// NewRedisHoldStore constructs a Redis-backed hold registry.
func NewRedisHoldStore(client *redis.Client, stream string, ttl time.Duration, maxLen int64) *RedisHoldStore {
	if stream == "" {
		stream = "stock_holds"
	}
	return &RedisHoldStore{
		client:    client,
		stream:    stream,
		keyPrefix: "hold:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// RecordHold writes the hold hash and appends a "held" stream entry.
func (r *RedisHoldStore) RecordHold(ctx context.Context, hold Hold) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	items, err := json.Marshal(hold.Items)
	if err != nil {
		return err
	}

	key := r.keyPrefix + hold.SagaID

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"saga_id":  hold.SagaID,
		"order_id": hold.OrderID,
		"items":    string(items),
		"held_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	r.appendEvent(ctx, pipe, hold.SagaID, hold.OrderID, "held")

	_, err = pipe.Exec(ctx)
	return err
}

// ReleaseHold deletes the hold hash and appends a "released" stream entry.
func (r *RedisHoldStore) ReleaseHold(ctx context.Context, sagaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.keyPrefix+sagaID)
	r.appendEvent(ctx, pipe, sagaID, "", "released")

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisHoldStore) appendEvent(ctx context.Context, pipe redis.Pipeliner, sagaID, orderID, event string) {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"saga_id":  sagaID,
			"order_id": orderID,
			"event":    event,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)
}
