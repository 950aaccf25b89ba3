package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Saul-Punybz/newsdesk/internal/middleware"
)

// RouterConfig wires the API.
type RouterConfig struct {
	Jobs             *JobsHandler
	Trending         *TrendingHandler
	TriggerTokenHash string
	CORSOrigins      []string
	// JobTimeout bounds synchronous trigger requests.
	JobTimeout time.Duration
}

// NewRouter builds the chi router for the API server.
func NewRouter(cfg RouterConfig) http.Handler {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/health", Health)

	// Public read and engagement routes.
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Get("/api/trending", cfg.Trending.Top)
		r.Post("/api/posts/{id}/events", cfg.Trending.RecordEvent)
	})

	// Job triggers.
	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.TriggerTokenHash))
		r.Use(chimw.Timeout(jobTimeout))
		r.Get("/api/jobs", cfg.Jobs.List)
		r.Post("/api/jobs/{job}", cfg.Jobs.Trigger)
	})

	return r
}
