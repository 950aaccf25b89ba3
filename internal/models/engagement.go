package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EngagementStore provides data access methods for engagement events and counters.
type EngagementStore struct {
	pool *pgxpool.Pool
}

// NewEngagementStore creates a new EngagementStore.
func NewEngagementStore(pool *pgxpool.Pool) *EngagementStore {
	return &EngagementStore{pool: pool}
}

// InsertEvent appends an engagement event. The post must be published.
func (s *EngagementStore) InsertEvent(ctx context.Context, ev *EngagementEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO engagement_events (id, post_id, kind, actor, created_at)
		SELECT $1, id, $3, $4, $5 FROM posts WHERE id = $2 AND status = 'published'
	`, ev.ID, ev.PostID, string(ev.Kind), ev.Actor, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("engagement insert event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCounter bumps the running total for kind, creating the row if needed.
func (s *EngagementStore) IncrementCounter(ctx context.Context, postID uuid.UUID, kind EventKind) error {
	var column string
	switch kind {
	case EventView:
		column = "views"
	case EventEmpathy:
		column = "empathy"
	case EventShare:
		column = "shares"
	default:
		return fmt.Errorf("engagement increment: unknown kind %q", kind)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engagement_counters (post_id, `+column+`) VALUES ($1, 1)
		ON CONFLICT (post_id) DO UPDATE
		SET `+column+` = engagement_counters.`+column+` + 1
	`, postID)
	if err != nil {
		return fmt.Errorf("engagement increment: %w", err)
	}
	return nil
}

// GetCounter returns the totals for a post.
func (s *EngagementStore) GetCounter(ctx context.Context, postID uuid.UUID) (*Counter, error) {
	c := Counter{PostID: postID}
	err := s.pool.QueryRow(ctx, `
		SELECT views, empathy, shares FROM engagement_counters WHERE post_id = $1
	`, postID).Scan(&c.Views, &c.Empathy, &c.Shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("engagement get counter: %w", err)
	}
	return &c, nil
}

// EventsSince returns events on published posts recorded at or after since.
func (s *EngagementStore) EventsSince(ctx context.Context, since time.Time) ([]EngagementEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.post_id, e.kind, e.created_at
		FROM engagement_events e
		JOIN posts p ON p.id = e.post_id AND p.status = 'published'
		WHERE e.created_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("engagement events since: %w", err)
	}
	defer rows.Close()

	var out []EngagementEvent
	for rows.Next() {
		var ev EngagementEvent
		if err := rows.Scan(&ev.ID, &ev.PostID, &ev.Kind, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("engagement events scan: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
