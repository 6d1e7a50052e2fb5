package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "rentbot:inbound:"

// Deduper remembers inbound message ids so provider redeliveries are handled once.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// FirstSeen reports whether id has not been seen within the TTL, and marks it seen.
// An empty id is always treated as new.
func (d *Deduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	if id == "" || d == nil || d.rdb == nil {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, dedupePrefix+id, 1, d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("failed to record inbound message %s: %w", id, err)
	}
	return ok, nil
}
