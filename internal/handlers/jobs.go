package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Saul-Punybz/newsdesk/internal/jobs"
)

// Triggerer runs named jobs.
type Triggerer interface {
	Trigger(ctx context.Context, name string) (jobs.Summary, error)
	Names() []string
}

// JobsHandler exposes the ingest, promote and rank triggers.
type JobsHandler struct {
	Runner Triggerer
}

// List handles GET /api/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.Runner.Names()})
}

// Trigger handles POST /api/jobs/{job}. The run is synchronous; a completed
// run answers 200 even when some sources failed, an aborted run 500 with
// the partial summary.
func (h *JobsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")

	sum, err := h.Runner.Trigger(r.Context(), name)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown job")
		return
	case errors.Is(err, jobs.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "job already running")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if sum.Status == jobs.StatusAborted {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, sum)
}
