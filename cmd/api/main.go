// Command api serves the job triggers, trending reads and engagement
// events over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Saul-Punybz/newsdesk/internal/app"
	"github.com/Saul-Punybz/newsdesk/internal/config"
	"github.com/Saul-Punybz/newsdesk/internal/handlers"
	"github.com/Saul-Punybz/newsdesk/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to initialise", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	router := handlers.NewRouter(handlers.RouterConfig{
		Jobs: &handlers.JobsHandler{Runner: a.Jobs},
		Trending: &handlers.TrendingHandler{
			Reader:   a.Reader,
			Recorder: a.Recorder,
		},
		TriggerTokenHash: cfg.Auth.TriggerTokenHash,
		CORSOrigins:      cfg.Server.CORSOrigins,
		JobTimeout:       cfg.Ingest.RunTimeout + time.Minute,
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Ingest.RunTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	slog.Info("server stopped")
}
