package db

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker takes session-level Postgres advisory locks so a job runs on at
// most one instance at a time.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates a Locker over pool.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// lockKey maps a job name to a stable advisory lock key.
func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("newsdesk:" + name))
	return int64(h.Sum64())
}

// TryLock attempts to take the lock for name without waiting. When ok is
// true the caller must invoke release once the job is done.
func (l *Locker) TryLock(ctx context.Context, name string) (release func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("db: lock %s: acquire: %w", name, err)
	}

	key := lockKey(name)
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("db: lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
			slog.Warn("db: advisory unlock failed", "lock", name, "err", err)
		}
		conn.Release()
	}
	return release, true, nil
}
