// Package promote turns approved pending feed items into published posts.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/probe"
)

// Store is the persistence the engine needs.
type Store interface {
	ListPendingItems(ctx context.Context, f models.PendingFilter) ([]models.FeedItem, error)
	GetSource(ctx context.Context, id uuid.UUID) (*models.FeedSource, error)
	PromoteItem(ctx context.Context, pr models.Promotion) error
	MarkItemStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus) error
}

// Prober checks whether a URL can be embedded.
type Prober interface {
	Probe(ctx context.Context, rawURL string, postType models.PostType) (*probe.Result, error)
}

// Outcome is what happened to one pending item.
type Outcome string

const (
	OutcomePromoted      Outcome = "promoted"
	OutcomeHeld          Outcome = "held"
	OutcomeRateLimited   Outcome = "rate-limited"
	OutcomeNotEmbeddable Outcome = "not-embeddable"
	OutcomeProbeFailed   Outcome = "probe-failed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeError         Outcome = "error"
)

// ItemResult records the decision for one item.
type ItemResult struct {
	ItemID   uuid.UUID
	SourceID uuid.UUID
	Source   string
	Outcome  Outcome
	PostID   uuid.UUID
	Detail   string
	Err      error
}

// Options configure the engine.
type Options struct {
	// AutoApproveCategories approves every item of a source in one of these
	// categories, even when the source itself has auto-approve off.
	AutoApproveCategories []string
	// BatchSize is the page size used to walk the pending set.
	BatchSize int
}

// Engine applies the approval rules to pending items.
type Engine struct {
	store      Store
	prober     Prober
	categories map[string]bool
	batch      int
	now        func() time.Time
}

// New creates an Engine.
func New(store Store, prober Prober, opts Options) *Engine {
	cats := make(map[string]bool, len(opts.AutoApproveCategories))
	for _, c := range opts.AutoApproveCategories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			cats[c] = true
		}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 200
	}
	return &Engine{store: store, prober: prober, categories: cats, batch: batch, now: time.Now}
}

// approves reports whether src's items are published without review.
func (e *Engine) approves(src *models.FeedSource) bool {
	return src.AutoApprove || e.categories[strings.ToLower(src.Category)]
}

// Run walks every pending item, oldest first, one page of BatchSize at a
// time. Items that match no approval rule are left pending and paged past,
// so they never hide newer items. A failure on one item never stops the
// run; only a cancelled context does.
func (e *Engine) Run(ctx context.Context) ([]ItemResult, error) {
	sources := make(map[uuid.UUID]*models.FeedSource)
	var results []ItemResult
	filter := models.PendingFilter{Limit: e.batch}
	pages := 0
	for {
		items, err := e.store.ListPendingItems(ctx, filter)
		if err != nil {
			return results, fmt.Errorf("promote: list pending: %w", err)
		}
		pages++
		for i := range items {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results = append(results, e.processItem(ctx, &items[i], sources))
		}
		if len(items) < e.batch {
			break
		}
		filter.After = models.CursorAfter(items[len(items)-1])
	}

	slog.Info("promote: run complete", "items", len(results), "pages", pages, "promoted", count(results, OutcomePromoted))
	return results, nil
}

func (e *Engine) source(ctx context.Context, id uuid.UUID, cache map[uuid.UUID]*models.FeedSource) (*models.FeedSource, error) {
	if src, ok := cache[id]; ok {
		return src, nil
	}
	src, err := e.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = src
	return src, nil
}

func (e *Engine) processItem(ctx context.Context, it *models.FeedItem, sources map[uuid.UUID]*models.FeedSource) ItemResult {
	res := ItemResult{ItemID: it.ID, SourceID: it.SourceID}

	src, err := e.source(ctx, it.SourceID, sources)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("promote: load source: %w", err)
		return res
	}
	res.Source = src.Name

	if !e.approves(src) {
		res.Outcome = OutcomeHeld
		return res
	}

	now := e.now().UTC()
	if spacing := src.Tuning.EmitSpacing(); spacing > 0 && src.LastEmittedAt != nil && now.Sub(*src.LastEmittedAt) < spacing {
		res.Outcome = OutcomeRateLimited
		res.Detail = fmt.Sprintf("next emission after %s", src.LastEmittedAt.Add(spacing).Format(time.RFC3339))
		return res
	}

	postType := Classify(it.URL)
	pr, err := e.prober.Probe(ctx, it.URL, postType)
	if err != nil {
		res.Outcome, res.Err = OutcomeProbeFailed, err
		slog.Warn("promote: probe failed, leaving pending", "item", it.ID, "url", it.URL, "err", err)
		return res
	}
	if !pr.Embeddable {
		res.Outcome, res.Detail = OutcomeNotEmbeddable, pr.Details
		return res
	}

	post := buildPost(it, src, pr, postType, now)
	err = e.store.PromoteItem(ctx, models.Promotion{Post: post, ItemID: it.ID, SourceID: src.ID, EmittedAt: now})
	switch {
	case err == nil:
		src.LastEmittedAt = &now
		res.Outcome, res.PostID = OutcomePromoted, post.ID
		slog.Info("promote: item published", "item", it.ID, "post", post.ID, "source", src.Name, "type", postType)
	case errors.Is(err, models.ErrDuplicatePost):
		res.Outcome = OutcomeDuplicate
		if err := e.store.MarkItemStatus(ctx, it.ID, models.ItemRejected); err != nil {
			res.Outcome, res.Err = OutcomeError, fmt.Errorf("promote: reject duplicate: %w", err)
		}
	default:
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("promote: persist: %w", err)
		slog.Error("promote: persist failed", "item", it.ID, "err", err)
	}
	return res
}

func buildPost(it *models.FeedItem, src *models.FeedSource, pr *probe.Result, postType models.PostType, now time.Time) *models.Post {
	sourceID, itemID := src.ID, it.ID
	thumb := pr.Thumbnail
	if thumb == "" {
		thumb = it.ImageURL
	}
	return &models.Post{
		ID:             uuid.New(),
		SourceID:       &sourceID,
		FeedItemID:     &itemID,
		URL:            it.URL,
		URLFingerprint: it.URLFingerprint,
		Type:           postType,
		Title:          it.Title,
		Summary:        it.Summary,
		Thumbnail:      thumb,
		Embeddable:     true,
		EmbedDetails:   pr.Details,
		Tags:           it.Tags,
		Status:         models.PostPublished,
		PublishedAt:    now,
	}
}

func count(results []ItemResult, o Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Report folds item results into a job report.
func Report(results []ItemResult) jobs.Report {
	var rep jobs.Report
	sources := make(map[uuid.UUID]bool)
	for _, r := range results {
		sources[r.SourceID] = true
		rep.Processed++
		switch r.Outcome {
		case OutcomePromoted:
			rep.Created++
		case OutcomeDuplicate:
			rep.Duplicated++
		case OutcomeError:
			rep.Errored++
		default:
			rep.Skipped++
		}
		if r.Err != nil {
			rep.Errors = append(rep.Errors, jobs.SourceError{
				SourceID: r.SourceID.String(),
				Source:   r.Source,
				Item:     r.ItemID.String(),
				Error:    r.Err.Error(),
			})
		}
	}
	rep.Sources = len(sources)
	return rep
}
