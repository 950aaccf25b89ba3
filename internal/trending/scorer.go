package trending

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// Store is the persistence the scorer needs.
type Store interface {
	EventsSince(ctx context.Context, since time.Time) ([]models.EngagementEvent, error)
	ReplaceSnapshot(ctx context.Context, date time.Time, w models.Window, rows []models.SnapshotRow) error
}

// Invalidator drops cached reads for a window.
type Invalidator interface {
	Invalidate(ctx context.Context, w models.Window) error
}

// Windows are rebuilt in this order.
var Windows = []models.Window{models.WindowLive, models.WindowWeekly}

// WindowResult reports one rebuilt snapshot.
type WindowResult struct {
	Window models.Window
	Date   time.Time
	Posts  int
	Ranked int
}

// Scorer rebuilds trending snapshots.
type Scorer struct {
	store Store
	cache Invalidator
	opts  Options
	now   func() time.Time
}

// NewScorer creates a Scorer. cache may be nil.
func NewScorer(store Store, cache Invalidator, opts Options) *Scorer {
	return &Scorer{store: store, cache: cache, opts: opts.withDefaults(), now: time.Now}
}

// Rebuild recomputes and atomically replaces today's snapshot for w.
func (s *Scorer) Rebuild(ctx context.Context, w models.Window) (WindowResult, error) {
	now := s.now().UTC()
	day := now.Truncate(24 * time.Hour)

	events, err := s.store.EventsSince(ctx, now.Add(-w.Lookback()))
	if err != nil {
		return WindowResult{}, fmt.Errorf("trending: load events: %w", err)
	}

	scores := ScoreEvents(events, now, w, s.opts)
	rows := Rank(scores, s.opts.TopN)
	if err := s.store.ReplaceSnapshot(ctx, day, w, rows); err != nil {
		return WindowResult{}, fmt.Errorf("trending: replace %s snapshot: %w", w, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, w); err != nil {
			slog.Warn("trending: cache invalidate failed", "window", w, "err", err)
		}
	}

	slog.Info("trending: snapshot rebuilt", "window", w, "date", day.Format(time.DateOnly), "posts", len(scores), "ranked", len(rows))
	return WindowResult{Window: w, Date: day, Posts: len(scores), Ranked: len(rows)}, nil
}

// RebuildAll rebuilds every window and stops at the first failure.
func (s *Scorer) RebuildAll(ctx context.Context) ([]WindowResult, error) {
	results := make([]WindowResult, 0, len(Windows))
	for _, w := range Windows {
		res, err := s.Rebuild(ctx, w)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Report folds window results into a job report.
func Report(results []WindowResult) jobs.Report {
	var rep jobs.Report
	for _, r := range results {
		rep.Processed += r.Posts
		rep.Created += r.Ranked
		rep.Skipped += r.Posts - r.Ranked
	}
	return rep
}
