// Command worker runs the ingest, promote and rank jobs on cron schedules.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Saul-Punybz/newsdesk/internal/app"
	"github.com/Saul-Punybz/newsdesk/internal/config"
	"github.com/Saul-Punybz/newsdesk/internal/jobs"
	"github.com/Saul-Punybz/newsdesk/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("worker: load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout))

	slog.Info("worker: starting newsdesk worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("worker: initialise", "err", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	trigger := func(name string) {
		wg.Add(1)
		defer wg.Done()

		sum, err := a.Jobs.Trigger(ctx, name)
		switch {
		case errors.Is(err, jobs.ErrAlreadyRunning):
			slog.Info("cron: job still running, skipping", "job", name)
		case err != nil:
			slog.Error("cron: trigger failed", "job", name, "err", err)
		case sum.Status != jobs.StatusOK:
			slog.Warn("cron: job aborted", "job", name, "error", sum.Error)
		}
	}

	c := cron.New()
	schedules := []struct {
		job  string
		spec string
	}{
		{jobs.Ingest, cfg.Cron.Ingest},
		{jobs.Promote, cfg.Cron.Promote},
		{jobs.Rank, cfg.Cron.Rank},
	}
	for _, s := range schedules {
		name := s.job
		if _, err := c.AddFunc(s.spec, func() { trigger(name) }); err != nil {
			slog.Error("worker: add cron", "job", name, "spec", s.spec, "err", err)
			os.Exit(1)
		}
	}

	c.Start()
	slog.Info("worker: cron scheduler started", "jobs", len(c.Entries()))

	// Run each job once at startup so a fresh deploy does not wait for the
	// first tick.
	if cfg.Cron.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			slog.Info("worker: running initial jobs on startup")
			for _, s := range schedules {
				if ctx.Err() != nil {
					return
				}
				trigger(s.job)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	slog.Info("worker: received shutdown signal", "signal", sig.String())

	slog.Info("worker: stopping cron scheduler")
	cronCtx := c.Stop()

	cancel()

	select {
	case <-cronCtx.Done():
		slog.Info("worker: cron scheduler stopped")
	case <-time.After(30 * time.Second):
		slog.Warn("worker: cron scheduler stop timed out")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker: all in-flight jobs complete")
	case <-time.After(60 * time.Second):
		slog.Warn("worker: timed out waiting for in-flight jobs")
	}

	a.Close()
	slog.Info("worker: shutdown complete")
}
