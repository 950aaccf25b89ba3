package models

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore provides data access methods for trending snapshots.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// ReplaceSnapshot swaps the full ranked set for (date, window) in one
// transaction, so readers see either the previous rows or the new ones.
// The rebuild is recorded even when no post ranked.
func (s *SnapshotStore) ReplaceSnapshot(ctx context.Context, date time.Time, w Window, rows []SnapshotRow) error {
	day := date.UTC().Truncate(24 * time.Hour)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM trending_snapshots WHERE snapshot_date = $1 AND window_name = $2
		`, day, string(w)); err != nil {
			return fmt.Errorf("snapshot replace: delete: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO trending_snapshot_runs (snapshot_date, window_name, ranked, built_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (snapshot_date, window_name)
			DO UPDATE SET ranked = EXCLUDED.ranked, built_at = EXCLUDED.built_at
		`, day, string(w), len(rows)); err != nil {
			return fmt.Errorf("snapshot replace: record run: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"trending_snapshots"},
			[]string{"snapshot_date", "window_name", "post_id", "score", "rank", "last_event_at"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{day, string(w), r.PostID, r.Score, r.Rank, r.LastEventAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("snapshot replace: copy: %w", err)
		}
		return nil
	})
}

// TopSnapshot returns up to limit rows of the most recent rebuild for w.
// An empty rebuild yields no rows; older days are not consulted.
func (s *SnapshotStore) TopSnapshot(ctx context.Context, w Window, limit int) ([]SnapshotRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT snapshot_date, window_name, post_id, score, rank, last_event_at
		FROM trending_snapshots
		WHERE window_name = $1
		  AND snapshot_date = (SELECT max(snapshot_date) FROM trending_snapshot_runs WHERE window_name = $1)
		ORDER BY rank ASC
		LIMIT $2
	`, string(w), limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot top: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Date, &r.Window, &r.PostID, &r.Score, &r.Rank, &r.LastEventAt); err != nil {
			return nil, fmt.Errorf("snapshot scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
