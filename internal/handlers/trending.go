package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

const (
	defaultTrendingLimit = 20
	maxTrendingLimit     = 100
)

// TopReader serves ranked snapshots.
type TopReader interface {
	Top(ctx context.Context, w models.Window, limit int) ([]models.SnapshotRow, error)
}

// EventRecorder stores engagement events.
type EventRecorder interface {
	Record(ctx context.Context, postID uuid.UUID, kind models.EventKind, actor string) (*models.EngagementEvent, error)
}

// TrendingHandler serves rankings and accepts engagement events.
type TrendingHandler struct {
	Reader   TopReader
	Recorder EventRecorder
}

// Top handles GET /api/trending?window=live|weekly&limit=N.
func (h *TrendingHandler) Top(w http.ResponseWriter, r *http.Request) {
	win, ok := models.ParseWindow(r.URL.Query().Get("window"))
	if !ok {
		writeError(w, http.StatusBadRequest, "window must be live or weekly")
		return
	}
	limit := queryInt(r, "limit", defaultTrendingLimit, maxTrendingLimit)

	rows, err := h.Reader.Top(r.Context(), win, limit)
	if err != nil {
		slog.Error("trending: read", "window", win, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load trending")
		return
	}
	if rows == nil {
		rows = []models.SnapshotRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": win, "posts": rows})
}

// RecordEvent handles POST /api/posts/{id}/events with {"kind": "..."}.
func (h *TrendingHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}

	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, ok := models.ParseEventKind(body.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be view, empathy or share")
		return
	}

	ev, err := h.Recorder.Record(r.Context(), postID, kind, clientIP(r))
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		slog.Error("trending: record event", "post", postID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to record event")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
