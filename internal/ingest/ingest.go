// Package ingest drives fetch, parse, normalize and dedup for every due
// feed source and persists admitted items as pending.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Saul-Punybz/newsdesk/internal/dedup"
	"github.com/Saul-Punybz/newsdesk/internal/fetch"
	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/normalize"
	"github.com/Saul-Punybz/newsdesk/internal/parser"
)

// pollWriteTimeout bounds the last-polled write, which runs even after the
// run deadline has passed.
const pollWriteTimeout = 5 * time.Second

// SourceStore selects due sources and records poll outcomes.
type SourceStore interface {
	ListDueSources(ctx context.Context, now time.Time, limit int) ([]models.FeedSource, error)
	RecordPoll(ctx context.Context, id uuid.UUID, at time.Time, failed bool) error
}

// ItemStore persists admitted items.
type ItemStore interface {
	InsertItem(ctx context.Context, it *models.FeedItem) (bool, error)
}

// Fetcher retrieves feed bytes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Result, error)
}

// Deduper decides whether a candidate was seen before.
type Deduper interface {
	Check(ctx context.Context, cand dedup.Candidate) (dedup.Verdict, error)
}

// Archiver keeps a copy of raw payloads.
type Archiver interface {
	StoreFeedPayload(ctx context.Context, sourceID uuid.UUID, fetchedAt time.Time, body []byte) (string, error)
}

// Deps are the collaborators of a Runner. Archive may be nil.
type Deps struct {
	Sources SourceStore
	Items   ItemStore
	Fetcher Fetcher
	Dedup   Deduper
	Archive Archiver
}

// Options bound one ingestion run.
type Options struct {
	Concurrency   int
	RunTimeout    time.Duration
	MaxSources    int
	FetchTimeout  time.Duration
	MaxBytes      int64
	SummaryWindow int
	TagLimit      int
	Tags          []normalize.TagRule
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:   4,
		RunTimeout:    5 * time.Minute,
		MaxSources:    50,
		FetchTimeout:  15 * time.Second,
		MaxBytes:      5 << 20,
		SummaryWindow: 40,
		TagLimit:      5,
		Tags:          normalize.DefaultTagTable,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = d.RunTimeout
	}
	if o.MaxSources <= 0 {
		o.MaxSources = d.MaxSources
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.SummaryWindow < 0 {
		o.SummaryWindow = 0
	}
	if o.TagLimit <= 0 {
		o.TagLimit = d.TagLimit
	}
	if o.Tags == nil {
		o.Tags = d.Tags
	}
	return o
}

// Runner executes ingestion runs.
type Runner struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Runner.
func New(deps Deps, opts Options) *Runner {
	return &Runner{deps: deps, opts: opts.withDefaults(), now: time.Now}
}

// Run ingests every due source once. The returned error is set only when the
// due sources could not be listed; per-source failures live in the result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := r.now()
	runCtx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
	defer cancel()

	sources, err := r.deps.Sources.ListDueSources(runCtx, start, r.opts.MaxSources)
	if err != nil {
		return nil, fmt.Errorf("ingest: list due sources: %w", err)
	}

	slog.Info("ingest: starting run", "due", len(sources), "concurrency", r.opts.Concurrency)

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for i, src := range sources {
		if runCtx.Err() != nil {
			results[i] = SourceResult{Source: src, Deferred: true}
			continue
		}
		g.Go(func() error {
			// The slot may open only after the deadline.
			if runCtx.Err() != nil {
				results[i] = SourceResult{Source: src, Deferred: true}
				return nil
			}
			results[i] = r.ingestSource(runCtx, src)
			return nil
		})
	}
	_ = g.Wait()

	res := &RunResult{Sources: results, Elapsed: r.now().Sub(start)}
	if n := res.deferred(); n > 0 {
		slog.Warn("ingest: run deadline reached, sources deferred", "deferred", n)
	}
	return res, nil
}

func (r *Runner) fetchOptions(t models.Tuning) fetch.Options {
	schemes := []string{"https"}
	if t.AllowHTTP {
		schemes = append(schemes, "http")
	}
	return fetch.Options{Timeout: r.opts.FetchTimeout, MaxBytes: r.opts.MaxBytes, AllowedSchemes: schemes}
}

// ingestSource never returns an error; source failures are recorded on the
// result and in the source's poll bookkeeping.
func (r *Runner) ingestSource(ctx context.Context, src models.FeedSource) SourceResult {
	start := r.now()
	res := SourceResult{Source: src}
	tuning := src.Tuning.WithDefaults()

	res.Err = r.processSource(ctx, src, tuning, &res)
	res.Elapsed = r.now().Sub(start)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollWriteTimeout)
	defer cancel()
	if err := r.deps.Sources.RecordPoll(writeCtx, src.ID, r.now().UTC(), res.Err != nil); err != nil {
		slog.Error("ingest: record poll", "source", src.Name, "err", err)
		if res.Err == nil {
			res.Err = fmt.Errorf("ingest: record poll: %w", err)
		}
	}

	if res.Err != nil {
		slog.Error("ingest: source failed", "source", src.Name, "endpoint", src.Endpoint, "kind", fetch.KindOf(res.Err), "err", res.Err)
	} else {
		c := res.counts()
		slog.Info("ingest: source done", "source", src.Name, "items", len(res.Items),
			"created", c.Created, "duplicated", c.Duplicated, "errored", c.Errored, "elapsed", res.Elapsed)
	}
	return res
}

func (r *Runner) processSource(ctx context.Context, src models.FeedSource, tuning models.Tuning, res *SourceResult) error {
	fetchedAt := r.now().UTC()
	fetched, err := r.deps.Fetcher.Fetch(ctx, src.Endpoint, r.fetchOptions(tuning))
	if err != nil {
		return err
	}

	if r.deps.Archive != nil {
		if _, err := r.deps.Archive.StoreFeedPayload(ctx, src.ID, fetchedAt, fetched.Body); err != nil {
			slog.Warn("ingest: archive payload", "source", src.Name, "err", err)
		}
	}

	base := fetched.FinalURL
	if base == "" {
		base = src.Endpoint
	}
	feed, err := parser.Parse(fetched.Body, base)
	if err != nil {
		return err
	}
	if declared, ok := parser.ParseFormat(src.Format); ok && declared != parser.FormatAuto && declared != feed.Format {
		slog.Warn("ingest: declared format differs", "source", src.Name, "declared", declared, "detected", feed.Format)
	}

	items := feed.Items
	if len(items) > tuning.MaxItems {
		items = items[:tuning.MaxItems]
	}
	rules := normalize.MergeTagRules(tuning.KeywordHints, r.opts.Tags)

	for _, raw := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest: stopped after %d of %d items: %w", len(res.Items), len(items), err)
		}
		res.Items = append(res.Items, r.ingestItem(ctx, src, tuning, rules, raw))
	}
	return nil
}

func (r *Runner) ingestItem(ctx context.Context, src models.FeedSource, tuning models.Tuning, rules []normalize.TagRule, raw parser.RawItem) ItemResult {
	ir := ItemResult{GUID: raw.GUID, URL: raw.Link}

	if strings.TrimSpace(raw.Link) == "" {
		ir.Outcome, ir.Detail = OutcomeSkipped, "missing link"
		return ir
	}
	canonical, urlFP, err := normalize.URLFingerprint(raw.Link)
	if err != nil {
		ir.Outcome, ir.Detail = OutcomeSkipped, err.Error()
		return ir
	}
	ir.URL = canonical

	title := strings.TrimSpace(raw.Title)
	canonicalTitle := normalize.CanonicalTitle(title)
	content := normalize.CleanContent(raw.Body)

	verdict, err := r.deps.Dedup.Check(ctx, dedup.Candidate{
		URLFingerprint:   urlFP,
		TitleFingerprint: normalize.TitleFingerprint(canonicalTitle),
		CanonicalTitle:   canonicalTitle,
	})
	if err != nil {
		ir.Outcome, ir.Err = OutcomeError, err
		return ir
	}
	if verdict.Duplicate {
		ir.Outcome, ir.Reason, ir.MatchedID = OutcomeDuplicate, verdict.Reason, verdict.MatchedID
		slog.Debug("ingest: duplicate", "source", src.Name, "url", canonical, "reason", verdict.Reason, "matched", verdict.MatchedID, "similarity", verdict.Similarity)
		return ir
	}

	item := &models.FeedItem{
		ID:               uuid.New(),
		SourceID:         src.ID,
		GUID:             raw.GUID,
		Title:            title,
		CanonicalTitle:   canonicalTitle,
		URL:              canonical,
		RawContent:       raw.Body,
		Content:          content,
		Summary:          normalize.Summarize(content, tuning.SummaryLength, r.opts.SummaryWindow),
		ImageURL:         raw.ImageURL,
		Tags:             normalize.InferTags(rules, title+"\n"+content, r.opts.TagLimit),
		URLFingerprint:   urlFP,
		TitleFingerprint: normalize.TitleFingerprint(canonicalTitle),
		Status:           models.ItemPending,
	}
	if !raw.PublishedAt.IsZero() {
		t := raw.PublishedAt.UTC()
		item.PublishedAt = &t
	}

	created, err := r.deps.Items.InsertItem(ctx, item)
	switch {
	case err != nil:
		ir.Outcome, ir.Err = OutcomeError, fmt.Errorf("ingest: insert item: %w", err)
	case !created:
		// Lost a race with another writer on the same fingerprint.
		ir.Outcome, ir.Reason = OutcomeDuplicate, dedup.ReasonURL
	default:
		ir.Outcome, ir.ItemID = OutcomeCreated, item.ID
	}
	return ir
}
