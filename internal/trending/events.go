package trending

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// EventStore appends events and keeps the running counters.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.EngagementEvent) error
	IncrementCounter(ctx context.Context, postID uuid.UUID, kind models.EventKind) error
}

// AnonymizeActor hashes an actor identifier with salt. Empty actors stay empty.
func AnonymizeActor(salt, actor string) string {
	if actor == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + "\x00" + actor))
	return hex.EncodeToString(sum[:16])
}

// Recorder stores engagement events.
type Recorder struct {
	store EventStore
	salt  string
	now   func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(store EventStore, salt string) *Recorder {
	return &Recorder{store: store, salt: salt, now: time.Now}
}

// Record appends one event for a published post and bumps its counter.
// models.ErrNotFound means the post is missing or not published.
func (r *Recorder) Record(ctx context.Context, postID uuid.UUID, kind models.EventKind, actor string) (*models.EngagementEvent, error) {
	ev := &models.EngagementEvent{
		ID:        uuid.New(),
		PostID:    postID,
		Kind:      kind,
		Actor:     AnonymizeActor(r.salt, actor),
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}
	if err := r.store.IncrementCounter(ctx, postID, kind); err != nil {
		// Scoring reads events, not counters.
		slog.Warn("trending: counter increment failed", "post", postID, "kind", kind, "err", err)
	}
	return ev, nil
}

// SnapshotReader reads stored snapshots.
type SnapshotReader interface {
	TopSnapshot(ctx context.Context, w models.Window, limit int) ([]models.SnapshotRow, error)
}

// Cache is a read-through cache for snapshot reads.
type Cache interface {
	Get(ctx context.Context, w models.Window, limit int) ([]models.SnapshotRow, bool, error)
	Set(ctx context.Context, w models.Window, limit int, rows []models.SnapshotRow) error
	Invalidate(ctx context.Context, w models.Window) error
}

// Reader serves ranked reads, consulting the cache first when one is set.
type Reader struct {
	store SnapshotReader
	cache Cache
}

// NewReader creates a Reader. cache may be nil.
func NewReader(store SnapshotReader, cache Cache) *Reader {
	return &Reader{store: store, cache: cache}
}

// Top returns up to limit ranked rows for w.
func (r *Reader) Top(ctx context.Context, w models.Window, limit int) ([]models.SnapshotRow, error) {
	if r.cache != nil {
		rows, ok, err := r.cache.Get(ctx, w, limit)
		if err != nil {
			slog.Warn("trending: cache read failed", "window", w, "err", err)
		} else if ok {
			return rows, nil
		}
	}

	rows, err := r.store.TopSnapshot(ctx, w, limit)
	if err != nil {
		return nil, fmt.Errorf("trending: top %s: %w", w, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, w, limit, rows); err != nil {
			slog.Warn("trending: cache write failed", "window", w, "err", err)
		}
	}
	return rows, nil
}
