package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sourceColumns = `id, name, endpoint, format, category, enabled, auto_approve,
	poll_interval_s, last_polled_at, error_count, last_emitted_at, tuning, created_at`

// SourceStore provides data access methods for feed sources.
type SourceStore struct {
	pool *pgxpool.Pool
}

// NewSourceStore creates a new SourceStore.
func NewSourceStore(pool *pgxpool.Pool) *SourceStore {
	return &SourceStore{pool: pool}
}

// scannable is implemented by pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (FeedSource, error) {
	var (
		src       FeedSource
		intervalS int64
		tuning    []byte
	)
	if err := row.Scan(
		&src.ID, &src.Name, &src.Endpoint, &src.Format, &src.Category,
		&src.Enabled, &src.AutoApprove, &intervalS, &src.LastPolledAt,
		&src.ErrorCount, &src.LastEmittedAt, &tuning, &src.CreatedAt,
	); err != nil {
		return FeedSource{}, err
	}
	src.PollInterval = time.Duration(intervalS) * time.Second
	t, err := ParseTuning(tuning)
	if err != nil {
		slog.Warn("source: malformed tuning, using defaults", "source", src.Name, "err", err)
	}
	src.Tuning = t
	return src, nil
}

// UpsertSource inserts a source or updates the editable fields of the one
// with the same endpoint. Poll bookkeeping is left untouched on update.
func (s *SourceStore) UpsertSource(ctx context.Context, src *FeedSource) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if src.Format == "" {
		src.Format = "auto"
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feed_sources (id, name, endpoint, format, category, enabled,
		                          auto_approve, poll_interval_s, tuning)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (endpoint) DO UPDATE SET
			name = EXCLUDED.name,
			format = EXCLUDED.format,
			category = EXCLUDED.category,
			enabled = EXCLUDED.enabled,
			auto_approve = EXCLUDED.auto_approve,
			poll_interval_s = EXCLUDED.poll_interval_s,
			tuning = EXCLUDED.tuning
		RETURNING id, created_at
	`, src.ID, src.Name, src.Endpoint, src.Format, src.Category, src.Enabled,
		src.AutoApprove, int64(src.PollInterval/time.Second), src.Tuning.Marshal(),
	).Scan(&src.ID, &src.CreatedAt)
	if err != nil {
		return fmt.Errorf("source upsert: %w", err)
	}
	return nil
}

// GetSource returns a single source by ID.
func (s *SourceStore) GetSource(ctx context.Context, id uuid.UUID) (*FeedSource, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM feed_sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("source get: %w", err)
	}
	return &src, nil
}

// ListSources returns every source ordered by name.
func (s *SourceStore) ListSources(ctx context.Context) ([]FeedSource, error) {
	return s.query(ctx, `SELECT `+sourceColumns+` FROM feed_sources ORDER BY name ASC`)
}

// ListDueSources returns enabled sources whose poll interval has elapsed,
// never-polled first and then oldest poll first. limit <= 0 means no cap.
func (s *SourceStore) ListDueSources(ctx context.Context, now time.Time, limit int) ([]FeedSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM feed_sources
		WHERE enabled
		  AND (last_polled_at IS NULL
		       OR last_polled_at + make_interval(secs => poll_interval_s) <= $1)
		ORDER BY last_polled_at ASC NULLS FIRST, created_at ASC`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *SourceStore) query(ctx context.Context, query string, args ...any) ([]FeedSource, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source list: %w", err)
	}
	defer rows.Close()

	var sources []FeedSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("source scan: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// RecordPoll stamps the poll time and resets or bumps the error count.
func (s *SourceStore) RecordPoll(ctx context.Context, id uuid.UUID, at time.Time, failed bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE feed_sources
		SET last_polled_at = $2,
		    error_count = CASE WHEN $3 THEN error_count + 1 ELSE 0 END
		WHERE id = $1
	`, id, at, failed)
	if err != nil {
		return fmt.Errorf("source record poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
