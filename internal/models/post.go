package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostStore provides data access methods for posts.
type PostStore struct {
	pool *pgxpool.Pool
}

// NewPostStore creates a new PostStore.
func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// FindPostByURLFingerprint returns the published post owning the fingerprint.
func (s *PostStore) FindPostByURLFingerprint(ctx context.Context, fp string) (*Post, error) {
	var (
		p    Post
		tags []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_id, feed_item_id, url, url_fingerprint, post_type, title,
		       summary, thumbnail, embeddable, embed_details, tags, status, published_at
		FROM posts
		WHERE url_fingerprint = $1 AND status = 'published'
	`, fp).Scan(
		&p.ID, &p.SourceID, &p.FeedItemID, &p.URL, &p.URLFingerprint, &p.Type, &p.Title,
		&p.Summary, &p.Thumbnail, &p.Embeddable, &p.EmbedDetails, &tags, &p.Status, &p.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("post find by fingerprint: %w", err)
	}
	p.Tags = scanTags(tags)
	return &p, nil
}

func insertPost(ctx context.Context, q querier, p *Post) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PostPublished
	}
	_, err := q.Exec(ctx, `
		INSERT INTO posts (id, source_id, feed_item_id, url, url_fingerprint, post_type,
		                   title, summary, thumbnail, embeddable, embed_details, tags,
		                   status, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.SourceID, p.FeedItemID, p.URL, p.URLFingerprint, string(p.Type),
		p.Title, p.Summary, p.Thumbnail, p.Embeddable, p.EmbedDetails, marshalTags(p.Tags),
		string(p.Status), p.PublishedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePost
		}
		return fmt.Errorf("post insert: %w", err)
	}
	return nil
}

// InsertPost stores a post on its own, as direct submissions do.
func (s *PostStore) InsertPost(ctx context.Context, p *Post) error {
	if err := insertPost(ctx, s.pool, p); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engagement_counters (post_id) VALUES ($1) ON CONFLICT DO NOTHING
	`, p.ID)
	if err != nil {
		return fmt.Errorf("post seed counter: %w", err)
	}
	return nil
}

// PromoteItem creates the post, approves the item, seeds the counter and
// stamps the source's last emission inside one transaction.
func (s *PostStore) PromoteItem(ctx context.Context, pr Promotion) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertPost(ctx, tx, pr.Post); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE feed_items SET status = 'approved' WHERE id = $1 AND status = 'pending'
		`, pr.ItemID)
		if err != nil {
			return fmt.Errorf("promote: approve item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvalidTransition
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO engagement_counters (post_id) VALUES ($1) ON CONFLICT DO NOTHING
		`, pr.Post.ID); err != nil {
			return fmt.Errorf("promote: seed counter: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE feed_sources SET last_emitted_at = $2 WHERE id = $1
		`, pr.SourceID, pr.EmittedAt); err != nil {
			return fmt.Errorf("promote: stamp source: %w", err)
		}
		return nil
	})
}
