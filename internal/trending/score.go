// Package trending scores published posts by time-decayed engagement and
// maintains the ranked daily snapshots.
package trending

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// Weights are the per-kind event weights.
type Weights struct {
	Empathy float64
	Share   float64
	View    float64
}

// DefaultWeights ranks empathy above share above view.
func DefaultWeights() Weights {
	return Weights{Empathy: 5, Share: 3, View: 1}
}

// For returns the weight of kind.
func (w Weights) For(kind models.EventKind) float64 {
	switch kind {
	case models.EventEmpathy:
		return w.Empathy
	case models.EventShare:
		return w.Share
	case models.EventView:
		return w.View
	}
	return 0
}

// Options configure scoring.
type Options struct {
	Weights  Weights
	HalfLife time.Duration
	TopN     int
}

// DefaultOptions uses a 36h half-life and keeps the top 100.
func DefaultOptions() Options {
	return Options{Weights: DefaultWeights(), HalfLife: 36 * time.Hour, TopN: 100}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Weights == (Weights{}) {
		o.Weights = d.Weights
	}
	if o.HalfLife <= 0 {
		o.HalfLife = d.HalfLife
	}
	if o.TopN <= 0 {
		o.TopN = d.TopN
	}
	return o
}

// Contribution is weight·2^(−age/halfLife). Negative ages count as zero.
func Contribution(weight float64, age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return weight * math.Exp2(-age.Hours()/halfLife.Hours())
}

// Score is one post's aggregate.
type Score struct {
	PostID      uuid.UUID
	Score       float64
	LastEventAt time.Time
}

// ScoreEvents sums contributions of events inside the window ending at now.
func ScoreEvents(events []models.EngagementEvent, now time.Time, w models.Window, opts Options) []Score {
	opts = opts.withDefaults()
	since := now.Add(-w.Lookback())

	byPost := make(map[uuid.UUID]*Score)
	for _, ev := range events {
		if ev.CreatedAt.Before(since) {
			continue
		}
		weight := opts.Weights.For(ev.Kind)
		if weight == 0 {
			continue
		}
		s, ok := byPost[ev.PostID]
		if !ok {
			s = &Score{PostID: ev.PostID}
			byPost[ev.PostID] = s
		}
		s.Score += Contribution(weight, now.Sub(ev.CreatedAt), opts.HalfLife)
		if ev.CreatedAt.After(s.LastEventAt) {
			s.LastEventAt = ev.CreatedAt
		}
	}

	out := make([]Score, 0, len(byPost))
	for _, s := range byPost {
		out = append(out, *s)
	}
	return out
}

// Rank orders scores by score, then latest event, then post ID, and keeps
// the first topN as snapshot rows with 1-based ranks.
func Rank(scores []Score, topN int) []models.SnapshotRow {
	sorted := append([]Score(nil), scores...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastEventAt.Equal(b.LastEventAt) {
			return a.LastEventAt.After(b.LastEventAt)
		}
		return a.PostID.String() < b.PostID.String()
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}

	rows := make([]models.SnapshotRow, len(sorted))
	for i, s := range sorted {
		rows[i] = models.SnapshotRow{
			PostID:      s.PostID,
			Score:       s.Score,
			Rank:        i + 1,
			LastEventAt: s.LastEventAt,
		}
	}
	return rows
}
