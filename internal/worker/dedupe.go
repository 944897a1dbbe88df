package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "notify:event:"

// Dedupe remembers which events were already dispatched so redeliveries are
// acknowledged without sending twice
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupe creates a Dedupe whose marks expire after ttl
func NewDedupe(client *redis.Client, ttl time.Duration) *Dedupe {
	return &Dedupe{client: client, ttl: ttl}
}

func (d *Dedupe) key(id uuid.UUID) string {
	return dedupePrefix + id.String()
}

// Claim marks the event as taken by owner. It reports false when another
// delivery already claimed it.
func (d *Dedupe) Claim(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(id), owner, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", id, err)
	}
	return ok, nil
}

// Release drops the mark so a requeued delivery is processed again
func (d *Dedupe) Release(ctx context.Context, id uuid.UUID) error {
	if err := d.client.Del(ctx, d.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", id, err)
	}
	return nil
}
