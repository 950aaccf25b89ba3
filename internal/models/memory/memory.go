// Package memory is an in-process implementation of the newsdesk stores.
// It follows the Postgres semantics closely enough to back pipeline tests and
// dry runs of the CLI.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

type counter struct {
	views, empathy, shares int64
}

type snapshotKey struct {
	date   time.Time
	window models.Window
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	sources   map[uuid.UUID]*models.FeedSource
	items     map[uuid.UUID]*models.FeedItem
	itemOrder []uuid.UUID
	posts     map[uuid.UUID]*models.Post
	counters  map[uuid.UUID]*counter
	events    []models.EngagementEvent
	snapshots map[snapshotKey][]models.SnapshotRow

	// FailReplace, when set, is returned by ReplaceSnapshot without touching data.
	FailReplace error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       time.Now,
		sources:   make(map[uuid.UUID]*models.FeedSource),
		items:     make(map[uuid.UUID]*models.FeedItem),
		posts:     make(map[uuid.UUID]*models.Post),
		counters:  make(map[uuid.UUID]*counter),
		snapshots: make(map[snapshotKey][]models.SnapshotRow),
	}
}

// SetClock overrides the clock used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func cloneSource(src *models.FeedSource) models.FeedSource {
	out := *src
	if src.LastPolledAt != nil {
		t := *src.LastPolledAt
		out.LastPolledAt = &t
	}
	if src.LastEmittedAt != nil {
		t := *src.LastEmittedAt
		out.LastEmittedAt = &t
	}
	return out
}

// UpsertSource inserts or updates a source keyed by endpoint.
func (s *Store) UpsertSource(_ context.Context, src *models.FeedSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src.Format == "" {
		src.Format = "auto"
	}
	src.Tuning = src.Tuning.WithDefaults()
	for _, existing := range s.sources {
		if existing.Endpoint != src.Endpoint {
			continue
		}
		existing.Name = src.Name
		existing.Format = src.Format
		existing.Category = src.Category
		existing.Enabled = src.Enabled
		existing.AutoApprove = src.AutoApprove
		existing.PollInterval = src.PollInterval
		existing.Tuning = src.Tuning
		src.ID = existing.ID
		src.CreatedAt = existing.CreatedAt
		return nil
	}
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	src.CreatedAt = s.now().UTC()
	stored := cloneSource(src)
	s.sources[src.ID] = &stored
	return nil
}

// GetSource returns a copy of the source.
func (s *Store) GetSource(_ context.Context, id uuid.UUID) (*models.FeedSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneSource(src)
	return &out, nil
}

// ListSources returns every source ordered by name.
func (s *Store) ListSources(_ context.Context) ([]models.FeedSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeedSource, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, cloneSource(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListDueSources mirrors the SQL ordering: never polled first, then oldest poll.
func (s *Store) ListDueSources(_ context.Context, now time.Time, limit int) ([]models.FeedSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FeedSource
	for _, src := range s.sources {
		if src.Due(now) {
			out = append(out, cloneSource(src))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastPolledAt, out[j].LastPolledAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordPoll stamps the poll time and updates the error count.
func (s *Store) RecordPoll(_ context.Context, id uuid.UUID, at time.Time, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return models.ErrNotFound
	}
	t := at
	src.LastPolledAt = &t
	if failed {
		src.ErrorCount++
	} else {
		src.ErrorCount = 0
	}
	return nil
}

// InsertItem stores the item unless its URL fingerprint is taken.
func (s *Store) InsertItem(_ context.Context, it *models.FeedItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.URLFingerprint == it.URLFingerprint {
			return false, nil
		}
	}
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.Status == "" {
		it.Status = models.ItemPending
	}
	it.CreatedAt = s.now().UTC()
	stored := *it
	stored.Tags = append([]string(nil), it.Tags...)
	s.items[it.ID] = &stored
	s.itemOrder = append(s.itemOrder, it.ID)
	return true, nil
}

func (s *Store) findItem(match func(*models.FeedItem) bool) (*models.FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.itemOrder {
		if it := s.items[id]; match(it) {
			out := *it
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// FindItemByURLFingerprint returns the item owning the fingerprint.
func (s *Store) FindItemByURLFingerprint(_ context.Context, fp string) (*models.FeedItem, error) {
	return s.findItem(func(it *models.FeedItem) bool { return it.URLFingerprint == fp })
}

// FindItemByTitleFingerprint returns the oldest item with the title fingerprint.
func (s *Store) FindItemByTitleFingerprint(_ context.Context, fp string) (*models.FeedItem, error) {
	if fp == "" {
		return nil, models.ErrNotFound
	}
	return s.findItem(func(it *models.FeedItem) bool { return it.TitleFingerprint == fp })
}

// RecentTitles returns canonical titles created at or after since, newest first.
func (s *Store) RecentTitles(_ context.Context, since time.Time, limit int) ([]models.TitleCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TitleCandidate
	for i := len(s.itemOrder) - 1; i >= 0; i-- {
		it := s.items[s.itemOrder[i]]
		if it.CreatedAt.Before(since) || it.CanonicalTitle == "" {
			continue
		}
		out = append(out, models.TitleCandidate{ItemID: it.ID, CanonicalTitle: it.CanonicalTitle})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListPendingItems returns pending items in insertion order. A cursor
// resumes after the item it names.
func (s *Store) ListPendingItems(_ context.Context, f models.PendingFilter) ([]models.FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FeedItem
	order := s.itemOrder
	if f.After != nil {
		order = nil
		for i, id := range s.itemOrder {
			if id == f.After.ID {
				order = s.itemOrder[i+1:]
				break
			}
		}
	}
	for _, id := range order {
		it := s.items[id]
		if it.Status != models.ItemPending {
			continue
		}
		if f.SourceID != nil && it.SourceID != *f.SourceID {
			continue
		}
		if f.Since != nil && it.CreatedAt.Before(*f.Since) {
			continue
		}
		out = append(out, *it)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// MarkItemStatus moves a pending item forward.
func (s *Store) MarkItemStatus(_ context.Context, id uuid.UUID, status models.ItemStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return models.ErrNotFound
	}
	if !it.Status.CanTransition(status) {
		return models.ErrInvalidTransition
	}
	it.Status = status
	return nil
}

func (s *Store) publishedByFingerprint(fp string) *models.Post {
	for _, p := range s.posts {
		if p.URLFingerprint == fp && p.Status == models.PostPublished {
			return p
		}
	}
	return nil
}

// FindPostByURLFingerprint returns the published post owning the fingerprint.
func (s *Store) FindPostByURLFingerprint(_ context.Context, fp string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.publishedByFingerprint(fp)
	if p == nil {
		return nil, models.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) insertPostLocked(p *models.Post) error {
	if p.Status == "" {
		p.Status = models.PostPublished
	}
	if p.Status == models.PostPublished && s.publishedByFingerprint(p.URLFingerprint) != nil {
		return models.ErrDuplicatePost
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := *p
	s.posts[p.ID] = &stored
	if _, ok := s.counters[p.ID]; !ok {
		s.counters[p.ID] = &counter{}
	}
	return nil
}

// InsertPost stores a direct submission.
func (s *Store) InsertPost(_ context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPostLocked(p)
}

// PromoteItem applies a promotion atomically under the store lock.
func (s *Store) PromoteItem(_ context.Context, pr models.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[pr.ItemID]
	if !ok {
		return models.ErrNotFound
	}
	if !it.Status.CanTransition(models.ItemApproved) {
		return models.ErrInvalidTransition
	}
	src, ok := s.sources[pr.SourceID]
	if !ok {
		return models.ErrNotFound
	}
	if err := s.insertPostLocked(pr.Post); err != nil {
		return err
	}
	it.Status = models.ItemApproved
	t := pr.EmittedAt
	src.LastEmittedAt = &t
	return nil
}

// InsertEvent appends an event on a published post.
func (s *Store) InsertEvent(_ context.Context, ev *models.EngagementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[ev.PostID]
	if !ok || p.Status != models.PostPublished {
		return models.ErrNotFound
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	s.events = append(s.events, *ev)
	return nil
}

// IncrementCounter bumps the total for kind.
func (s *Store) IncrementCounter(_ context.Context, postID uuid.UUID, kind models.EventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[postID]
	if !ok {
		c = &counter{}
		s.counters[postID] = c
	}
	switch kind {
	case models.EventView:
		c.views++
	case models.EventEmpathy:
		c.empathy++
	case models.EventShare:
		c.shares++
	}
	return nil
}

// GetCounter returns the totals for a post.
func (s *Store) GetCounter(_ context.Context, postID uuid.UUID) (*models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[postID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.Counter{PostID: postID, Views: c.views, Empathy: c.empathy, Shares: c.shares}, nil
}

// EventsSince returns events on published posts at or after since.
func (s *Store) EventsSince(_ context.Context, since time.Time) ([]models.EngagementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EngagementEvent
	for _, ev := range s.events {
		if ev.CreatedAt.Before(since) {
			continue
		}
		if p, ok := s.posts[ev.PostID]; !ok || p.Status != models.PostPublished {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReplaceSnapshot swaps the rows for (date, window) in one step.
func (s *Store) ReplaceSnapshot(_ context.Context, date time.Time, w models.Window, rows []models.SnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReplace != nil {
		return s.FailReplace
	}
	day := date.UTC().Truncate(24 * time.Hour)
	out := make([]models.SnapshotRow, len(rows))
	for i, r := range rows {
		r.Date = day
		r.Window = w
		out[i] = r
	}
	s.snapshots[snapshotKey{date: day, window: w}] = out
	return nil
}

// TopSnapshot returns up to limit rows of the latest snapshot for w.
func (s *Store) TopSnapshot(_ context.Context, w models.Window, limit int) ([]models.SnapshotRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for k := range s.snapshots {
		if k.window == w && (!found || k.date.After(latest)) {
			latest = k.date
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	rows := s.snapshots[snapshotKey{date: latest, window: w}]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]models.SnapshotRow(nil), rows...), nil
}

// Items returns a copy of every item in insertion order.
func (s *Store) Items() []models.FeedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeedItem, 0, len(s.itemOrder))
	for _, id := range s.itemOrder {
		out = append(out, *s.items[id])
	}
	return out
}

// Posts returns a copy of every post.
func (s *Store) Posts() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.Before(out[j].PublishedAt) })
	return out
}
