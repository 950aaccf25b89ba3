// Package app assembles the pipeline components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Saul-Punybz/newsdesk/internal/cache"
	"github.com/Saul-Punybz/newsdesk/internal/config"
	"github.com/Saul-Punybz/newsdesk/internal/db"
	"github.com/Saul-Punybz/newsdesk/internal/dedup"
	"github.com/Saul-Punybz/newsdesk/internal/fetch"
	"github.com/Saul-Punybz/newsdesk/internal/ingest"
	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/models/memory"
	"github.com/Saul-Punybz/newsdesk/internal/normalize"
	"github.com/Saul-Punybz/newsdesk/internal/probe"
	"github.com/Saul-Punybz/newsdesk/internal/promote"
	"github.com/Saul-Punybz/newsdesk/internal/storage"
	"github.com/Saul-Punybz/newsdesk/internal/trending"
)

// Store is every persistence operation the pipeline uses. Both the
// Postgres stores and the in-memory store implement it.
type Store interface {
	ingest.SourceStore
	ingest.ItemStore
	dedup.Store
	promote.Store
	trending.Store
	trending.EventStore
	trending.SnapshotReader
	UpsertSource(ctx context.Context, src *models.FeedSource) error
	ListSources(ctx context.Context) ([]models.FeedSource, error)
}

var (
	_ Store = (*models.Stores)(nil)
	_ Store = (*memory.Store)(nil)
)

// Options select the backing services.
type Options struct {
	// Memory uses the in-process store and skips Postgres, Redis and S3.
	Memory bool
}

// App holds the wired components.
type App struct {
	Config   config.Config
	Store    Store
	Jobs     *jobs.Runner
	Ingest   *ingest.Runner
	Promote  *promote.Engine
	Scorer   *trending.Scorer
	Reader   *trending.Reader
	Recorder *trending.Recorder

	closers []func()
}

// New connects the configured backends and wires the three jobs.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	var (
		locker    jobs.Locker
		snapCache trending.Cache
		archive   ingest.Archiver
	)

	if opts.Memory {
		a.Store = memory.New()
		slog.Info("app: using in-memory store")
	} else {
		pool, err := db.Connect(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.Store = models.NewStores(pool)
		locker = db.NewLocker(pool)

		if cfg.Redis.Addr != "" {
			rdb := cache.Connect(ctx, cfg.Redis)
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			snapCache = cache.New(rdb, cfg.Redis.TTL)
		}

		if cfg.S3.Enabled() {
			arc, err := storage.NewArchive(ctx, cfg.S3)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("app: %w", err)
			}
			archive = arc
		}
	}

	fetcher := fetch.New(fetch.WithUserAgent(cfg.Fetch.UserAgent))
	prober := probe.New(fetcher.Transport(), probe.WithUserAgent(cfg.Fetch.UserAgent), probe.WithTimeout(cfg.Fetch.Timeout))

	a.Ingest = ingest.New(ingest.Deps{
		Sources: a.Store,
		Items:   a.Store,
		Fetcher: fetcher,
		Dedup: dedup.New(a.Store, dedup.Options{
			Window:        cfg.Dedup.Window,
			MaxCandidates: cfg.Dedup.MaxCandidates,
			Threshold:     cfg.Dedup.Threshold,
		}),
		Archive: archive,
	}, ingest.Options{
		Concurrency:   cfg.Ingest.Concurrency,
		RunTimeout:    cfg.Ingest.RunTimeout,
		MaxSources:    cfg.Ingest.MaxSources,
		FetchTimeout:  cfg.Fetch.Timeout,
		MaxBytes:      cfg.Fetch.MaxBytes,
		SummaryWindow: cfg.Ingest.SummaryWindow,
		TagLimit:      cfg.Ingest.TagLimit,
		Tags:          normalize.DefaultTagTable,
	})

	a.Promote = promote.New(a.Store, prober, promote.Options{
		AutoApproveCategories: cfg.Promote.AutoApproveCategories,
		BatchSize:             cfg.Promote.BatchSize,
	})

	trendOpts := trending.Options{
		Weights: trending.Weights{
			Empathy: cfg.Trending.EmpathyWeight,
			Share:   cfg.Trending.ShareWeight,
			View:    cfg.Trending.ViewWeight,
		},
		HalfLife: cfg.Trending.HalfLife,
		TopN:     cfg.Trending.TopN,
	}
	var invalidator trending.Invalidator
	if snapCache != nil {
		invalidator = snapCache
	}
	a.Scorer = trending.NewScorer(a.Store, invalidator, trendOpts)
	a.Reader = trending.NewReader(a.Store, snapCache)
	a.Recorder = trending.NewRecorder(a.Store, cfg.Auth.ActorSalt)

	a.Jobs = jobs.NewRunner(locker)
	a.Jobs.Register(jobs.Ingest, a.runIngest)
	a.Jobs.Register(jobs.Promote, a.runPromote)
	a.Jobs.Register(jobs.Rank, a.runRank)
	return a, nil
}

func (a *App) runIngest(ctx context.Context) (jobs.Report, error) {
	res, err := a.Ingest.Run(ctx)
	if err != nil {
		return jobs.Report{}, err
	}
	return res.Report(), nil
}

func (a *App) runPromote(ctx context.Context) (jobs.Report, error) {
	results, err := a.Promote.Run(ctx)
	return promote.Report(results), err
}

func (a *App) runRank(ctx context.Context) (jobs.Report, error) {
	results, err := a.Scorer.RebuildAll(ctx)
	return trending.Report(results), err
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
