// Package models defines the persisted domain types and their Postgres stores.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("models: not found")
	// ErrInvalidTransition is returned when an item status change would move backwards.
	ErrInvalidTransition = errors.New("models: invalid status transition")
	// ErrDuplicatePost is returned when a published post already owns the canonical URL.
	ErrDuplicatePost = errors.New("models: duplicate published post")
)

// ItemStatus is the publish decision state of a feed item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// CanTransition reports whether an item may move from s to next.
// Only pending items change state.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	return s == ItemPending && (next == ItemApproved || next == ItemRejected)
}

// PostStatus is the visibility of a post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostHidden    PostStatus = "hidden"
)

// PostType classifies what a post links to.
type PostType string

const (
	PostArticle PostType = "article"
	PostVideo   PostType = "video"
	PostSocial  PostType = "social"
	PostAudio   PostType = "audio"
	PostImage   PostType = "image"
)

// EventKind is the kind of a user engagement event.
type EventKind string

const (
	EventView    EventKind = "view"
	EventEmpathy EventKind = "empathy"
	EventShare   EventKind = "share"
)

// ParseEventKind validates an event kind string.
func ParseEventKind(s string) (EventKind, bool) {
	switch k := EventKind(s); k {
	case EventView, EventEmpathy, EventShare:
		return k, true
	}
	return "", false
}

// Window names a trending lookback window.
type Window string

const (
	WindowLive   Window = "live"
	WindowWeekly Window = "weekly"
)

// Lookback returns the duration covered by the window.
func (w Window) Lookback() time.Duration {
	if w == WindowWeekly {
		return 168 * time.Hour
	}
	return 24 * time.Hour
}

// ParseWindow validates a window name; empty means live.
func ParseWindow(s string) (Window, bool) {
	switch Window(s) {
	case "", WindowLive:
		return WindowLive, true
	case WindowWeekly:
		return WindowWeekly, true
	}
	return "", false
}

// FeedSource is an external feed polled on an interval.
type FeedSource struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Endpoint      string        `json:"endpoint"`
	Format        string        `json:"format"`
	Category      string        `json:"category"`
	Enabled       bool          `json:"enabled"`
	AutoApprove   bool          `json:"auto_approve"`
	PollInterval  time.Duration `json:"poll_interval"`
	LastPolledAt  *time.Time    `json:"last_polled_at,omitempty"`
	ErrorCount    int           `json:"error_count"`
	LastEmittedAt *time.Time    `json:"last_emitted_at,omitempty"`
	Tuning        Tuning        `json:"tuning"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Due reports whether the source should be polled at now.
func (s FeedSource) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastPolledAt == nil {
		return true
	}
	return !s.LastPolledAt.Add(s.PollInterval).After(now)
}

// FeedItem is an ingested entry awaiting a publish decision.
type FeedItem struct {
	ID               uuid.UUID  `json:"id"`
	SourceID         uuid.UUID  `json:"source_id"`
	GUID             string     `json:"guid"`
	Title            string     `json:"title"`
	CanonicalTitle   string     `json:"canonical_title"`
	URL              string     `json:"url"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	RawContent       string     `json:"raw_content,omitempty"`
	Content          string     `json:"content,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	ImageURL         string     `json:"image_url,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	URLFingerprint   string     `json:"url_fingerprint"`
	TitleFingerprint string     `json:"title_fingerprint,omitempty"`
	Status           ItemStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TitleCandidate is a recently ingested canonical title used for fuzzy matching.
type TitleCandidate struct {
	ItemID         uuid.UUID
	CanonicalTitle string
}

// PendingCursor marks the last item of a page; the next page starts after it.
type PendingCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAfter returns the cursor positioned on it.
func CursorAfter(it FeedItem) *PendingCursor {
	return &PendingCursor{CreatedAt: it.CreatedAt, ID: it.ID}
}

// PendingFilter narrows ListPendingItems.
type PendingFilter struct {
	SourceID *uuid.UUID
	Since    *time.Time
	After    *PendingCursor
	Limit    int
}

// Post is a published content unit.
type Post struct {
	ID             uuid.UUID  `json:"id"`
	SourceID       *uuid.UUID `json:"source_id,omitempty"`
	FeedItemID     *uuid.UUID `json:"feed_item_id,omitempty"`
	URL            string     `json:"url"`
	URLFingerprint string     `json:"url_fingerprint"`
	Type           PostType   `json:"type"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
	Embeddable     bool       `json:"embeddable"`
	EmbedDetails   string     `json:"embed_details,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Status         PostStatus `json:"status"`
	PublishedAt    time.Time  `json:"published_at"`
}

// Promotion is the unit written atomically when an item becomes a post.
type Promotion struct {
	Post      *Post
	ItemID    uuid.UUID
	SourceID  uuid.UUID
	EmittedAt time.Time
}

// EngagementEvent is an append-only user interaction with a post.
type EngagementEvent struct {
	ID        uuid.UUID `json:"id"`
	PostID    uuid.UUID `json:"post_id"`
	Kind      EventKind `json:"kind"`
	Actor     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Counter holds running engagement totals for a post.
type Counter struct {
	PostID  uuid.UUID `json:"post_id"`
	Views   int64     `json:"views"`
	Empathy int64     `json:"empathy"`
	Shares  int64     `json:"shares"`
}

// SnapshotRow is one ranked entry of a trending snapshot.
type SnapshotRow struct {
	Date        time.Time `json:"date"`
	Window      Window    `json:"window"`
	PostID      uuid.UUID `json:"post_id"`
	Score       float64   `json:"score"`
	Rank        int       `json:"rank"`
	LastEventAt time.Time `json:"last_event_at"`
}
