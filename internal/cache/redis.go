// Package cache is the Redis read cache for trending snapshots.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Saul-Punybz/newsdesk/internal/config"
	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// Trending caches ranked reads with one hash per window, keyed by limit,
// so a rebuild drops every cached page of that window with one DEL.
type Trending struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// New wraps an existing client.
func New(rdb redis.Cmdable, ttl time.Duration) *Trending {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Trending{rdb: rdb, ttl: ttl}
}

// Connect dials Redis from cfg. A failed ping is logged, not fatal.
func Connect(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis ping failed", "addr", cfg.Addr, "err", err)
	}
	return rdb
}

func key(w models.Window) string {
	return "newsdesk:trending:" + string(w)
}

// Get returns the cached rows and whether they were present.
func (t *Trending) Get(ctx context.Context, w models.Window, limit int) ([]models.SnapshotRow, bool, error) {
	bs, err := t.rdb.HGet(ctx, key(w), strconv.Itoa(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", w, err)
	}
	var rows []models.SnapshotRow
	if err := json.Unmarshal(bs, &rows); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", w, err)
	}
	return rows, true, nil
}

// Set stores rows for (w, limit) and refreshes the window TTL.
func (t *Trending) Set(ctx context.Context, w models.Window, limit int, rows []models.SnapshotRow) error {
	if rows == nil {
		rows = []models.SnapshotRow{}
	}
	bs, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", w, err)
	}
	_, err = t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key(w), strconv.Itoa(limit), bs)
		p.Expire(ctx, key(w), t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", w, err)
	}
	return nil
}

// Invalidate drops every cached read of w.
func (t *Trending) Invalidate(ctx context.Context, w models.Window) error {
	if err := t.rdb.Del(ctx, key(w)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", w, err)
	}
	return nil
}
