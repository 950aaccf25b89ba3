// Package dedup decides whether a normalized item repeats something already
// ingested or published.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

// Reason names the check that matched.
type Reason string

const (
	ReasonURL   Reason = "duplicate-url"
	ReasonPost  Reason = "duplicate-post"
	ReasonTitle Reason = "duplicate-title"
	ReasonFuzzy Reason = "duplicate-fuzzy"
)

// Verdict is the outcome of a check. A zero Verdict means unique.
type Verdict struct {
	Duplicate  bool
	Reason     Reason
	MatchedID  uuid.UUID
	Similarity float64
}

// Store is the read side the checks need.
type Store interface {
	FindItemByURLFingerprint(ctx context.Context, fp string) (*models.FeedItem, error)
	FindPostByURLFingerprint(ctx context.Context, fp string) (*models.Post, error)
	FindItemByTitleFingerprint(ctx context.Context, fp string) (*models.FeedItem, error)
	RecentTitles(ctx context.Context, since time.Time, limit int) ([]models.TitleCandidate, error)
}

// Options tune the fuzzy stage.
type Options struct {
	Window        time.Duration
	MaxCandidates int
	Threshold     float64
	MinTitleRunes int
}

// DefaultOptions compares against the last 24h, at most 500 titles.
func DefaultOptions() Options {
	return Options{Window: 24 * time.Hour, MaxCandidates: 500, Threshold: 0.8, MinTitleRunes: 10}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = d.Threshold
	}
	if o.MinTitleRunes <= 0 {
		o.MinTitleRunes = d.MinTitleRunes
	}
	return o
}

// Candidate is the normalized form of an incoming item.
type Candidate struct {
	URLFingerprint   string
	TitleFingerprint string
	CanonicalTitle   string
}

// Checker runs the ordered duplicate checks.
type Checker struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New creates a Checker.
func New(store Store, opts Options) *Checker {
	return &Checker{store: store, opts: opts.withDefaults(), now: time.Now}
}

// Check runs URL, published-post, title and fuzzy checks in that order and
// stops at the first match.
func (c *Checker) Check(ctx context.Context, cand Candidate) (Verdict, error) {
	it, err := c.store.FindItemByURLFingerprint(ctx, cand.URLFingerprint)
	if err = found(err); err != nil {
		return Verdict{}, fmt.Errorf("dedup: url: %w", err)
	}
	if it != nil {
		return Verdict{Duplicate: true, Reason: ReasonURL, MatchedID: it.ID, Similarity: 1}, nil
	}

	post, err := c.store.FindPostByURLFingerprint(ctx, cand.URLFingerprint)
	if err = found(err); err != nil {
		return Verdict{}, fmt.Errorf("dedup: post: %w", err)
	}
	if post != nil {
		return Verdict{Duplicate: true, Reason: ReasonPost, MatchedID: post.ID, Similarity: 1}, nil
	}

	if cand.TitleFingerprint != "" {
		it, err := c.store.FindItemByTitleFingerprint(ctx, cand.TitleFingerprint)
		if err = found(err); err != nil {
			return Verdict{}, fmt.Errorf("dedup: title: %w", err)
		}
		if it != nil {
			return Verdict{Duplicate: true, Reason: ReasonTitle, MatchedID: it.ID, Similarity: 1}, nil
		}
	}

	if utf8.RuneCountInString(cand.CanonicalTitle) < c.opts.MinTitleRunes {
		return Verdict{}, nil
	}

	recent, err := c.store.RecentTitles(ctx, c.now().Add(-c.opts.Window), c.opts.MaxCandidates)
	if err != nil {
		return Verdict{}, fmt.Errorf("dedup: recent titles: %w", err)
	}
	grams := bigrams(cand.CanonicalTitle)
	best := Verdict{}
	for _, r := range recent {
		if utf8.RuneCountInString(r.CanonicalTitle) < c.opts.MinTitleRunes {
			continue
		}
		sim := jaccard(grams, bigrams(r.CanonicalTitle))
		if sim >= c.opts.Threshold && sim > best.Similarity {
			best = Verdict{Duplicate: true, Reason: ReasonFuzzy, MatchedID: r.ItemID, Similarity: sim}
		}
	}
	return best, nil
}

// found turns ErrNotFound into nil so callers only see real failures.
func found(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

// bigrams returns the set of adjacent rune pairs of s with whitespace removed.
// A single rune yields itself as the only shingle.
func bigrams(s string) map[string]struct{} {
	runes := []rune(strings.Join(strings.Fields(s), ""))
	set := make(map[string]struct{}, len(runes))
	if len(runes) == 1 {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is the bigram Jaccard similarity of two canonical titles.
func Similarity(a, b string) float64 {
	return jaccard(bigrams(a), bigrams(b))
}
