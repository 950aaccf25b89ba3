package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var itemColumns = []string{
	"id", "source_id", "guid", "title", "canonical_title", "url", "published_at",
	"raw_content", "content", "summary", "image_url", "tags",
	"url_fingerprint", "title_fingerprint", "status", "created_at",
}

// ItemStore provides data access methods for feed items.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

// marshalTags encodes a tag set for a JSONB column. nil becomes [].
func marshalTags(tags []string) []byte {
	if len(tags) == 0 {
		return []byte("[]")
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return []byte("[]")
	}
	return b
}

// scanTags unmarshals a JSONB tags column into a []string.
func scanTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func scanItem(row scannable) (FeedItem, error) {
	var (
		it   FeedItem
		tags []byte
	)
	if err := row.Scan(
		&it.ID, &it.SourceID, &it.GUID, &it.Title, &it.CanonicalTitle, &it.URL,
		&it.PublishedAt, &it.RawContent, &it.Content, &it.Summary, &it.ImageURL,
		&tags, &it.URLFingerprint, &it.TitleFingerprint, &it.Status, &it.CreatedAt,
	); err != nil {
		return FeedItem{}, err
	}
	it.Tags = scanTags(tags)
	return it, nil
}

// InsertItem stores a new pending item. It reports created=false without
// error when an item with the same URL fingerprint already exists.
func (s *ItemStore) InsertItem(ctx context.Context, it *FeedItem) (bool, error) {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.Status == "" {
		it.Status = ItemPending
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feed_items (id, source_id, guid, title, canonical_title, url,
		                        published_at, raw_content, content, summary, image_url,
		                        tags, url_fingerprint, title_fingerprint, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (url_fingerprint) DO NOTHING
		RETURNING created_at
	`, it.ID, it.SourceID, it.GUID, it.Title, it.CanonicalTitle, it.URL,
		it.PublishedAt, it.RawContent, it.Content, it.Summary, it.ImageURL,
		marshalTags(it.Tags), it.URLFingerprint, it.TitleFingerprint, string(it.Status),
	).Scan(&it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("item insert: %w", err)
	}
	return true, nil
}

func (s *ItemStore) findOne(ctx context.Context, column, value string) (*FeedItem, error) {
	query, args, err := psql.Select(itemColumns...).From("feed_items").
		Where(sq.Eq{column: value}).OrderBy("created_at ASC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("item find: build: %w", err)
	}
	it, err := scanItem(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("item find by %s: %w", column, err)
	}
	return &it, nil
}

// FindItemByURLFingerprint returns the item owning the URL fingerprint.
func (s *ItemStore) FindItemByURLFingerprint(ctx context.Context, fp string) (*FeedItem, error) {
	return s.findOne(ctx, "url_fingerprint", fp)
}

// FindItemByTitleFingerprint returns the oldest item with the title fingerprint.
func (s *ItemStore) FindItemByTitleFingerprint(ctx context.Context, fp string) (*FeedItem, error) {
	if fp == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "title_fingerprint", fp)
}

// RecentTitles returns canonical titles ingested at or after since, newest
// first, capped at limit.
func (s *ItemStore) RecentTitles(ctx context.Context, since time.Time, limit int) ([]TitleCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, canonical_title FROM feed_items
		WHERE created_at >= $1 AND canonical_title <> ''
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("item recent titles: %w", err)
	}
	defer rows.Close()

	var out []TitleCandidate
	for rows.Next() {
		var c TitleCandidate
		if err := rows.Scan(&c.ItemID, &c.CanonicalTitle); err != nil {
			return nil, fmt.Errorf("item recent titles scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListPendingItems returns pending items oldest first, ordered by
// (created_at, id) so a cursor can page through them.
func (s *ItemStore) ListPendingItems(ctx context.Context, f PendingFilter) ([]FeedItem, error) {
	b := psql.Select(itemColumns...).From("feed_items").
		Where(sq.Eq{"status": string(ItemPending)}).
		OrderBy("created_at ASC", "id ASC")
	if f.SourceID != nil {
		b = b.Where(sq.Eq{"source_id": *f.SourceID})
	}
	if f.Since != nil {
		b = b.Where(sq.GtOrEq{"created_at": *f.Since})
	}
	if f.After != nil {
		b = b.Where(sq.Expr("(created_at, id) > (?, ?)", f.After.CreatedAt, f.After.ID))
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("item list pending: build: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("item list pending: %w", err)
	}
	defer rows.Close()

	var items []FeedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("item scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkItemStatus moves a pending item to approved or rejected.
func (s *ItemStore) MarkItemStatus(ctx context.Context, id uuid.UUID, status ItemStatus) error {
	if !ItemPending.CanTransition(status) {
		return ErrInvalidTransition
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE feed_items SET status = $2 WHERE id = $1 AND status = 'pending'
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("item mark status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM feed_items WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("item mark status: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}
