package promote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/models/memory"
	"github.com/Saul-Punybz/newsdesk/internal/normalize"
	"github.com/Saul-Punybz/newsdesk/internal/probe"
)

type fakeProber struct {
	result *probe.Result
	err    error
	calls  []string
}

func (f *fakeProber) Probe(_ context.Context, rawURL string, _ models.PostType) (*probe.Result, error) {
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func okProber() *fakeProber {
	return &fakeProber{result: &probe.Result{Embeddable: true, Details: "ok", Thumbnail: "https://cdn.example.com/t.jpg"}}
}

func addSource(t *testing.T, s *memory.Store, src *models.FeedSource) *models.FeedSource {
	t.Helper()
	src.Enabled = true
	if src.Endpoint == "" {
		src.Endpoint = "https://" + src.Name + ".example/feed"
	}
	require.NoError(t, s.UpsertSource(context.Background(), src))
	return src
}

func addItem(t *testing.T, s *memory.Store, src *models.FeedSource, rawURL string) *models.FeedItem {
	t.Helper()
	canonical, fp, err := normalize.URLFingerprint(rawURL)
	require.NoError(t, err)
	it := &models.FeedItem{
		SourceID:       src.ID,
		Title:          "Title for " + canonical,
		URL:            canonical,
		URLFingerprint: fp,
		Summary:        "summary",
		Tags:           []string{"news"},
	}
	created, err := s.InsertItem(context.Background(), it)
	require.NoError(t, err)
	require.True(t, created)
	return it
}

func TestRunAutoApprovedSource(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "wire", Category: "news", AutoApprove: true})
	it := addItem(t, s, src, "http://www.example.com/a?utm_source=x")

	results, err := New(s, okProber(), Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomePromoted, results[0].Outcome)

	posts := s.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "https://example.com/a", posts[0].URL)
	assert.Equal(t, models.PostPublished, posts[0].Status)
	assert.Equal(t, models.PostArticle, posts[0].Type)
	assert.Equal(t, "https://cdn.example.com/t.jpg", posts[0].Thumbnail)
	require.NotNil(t, posts[0].FeedItemID)
	assert.Equal(t, it.ID, *posts[0].FeedItemID)

	assert.Equal(t, models.ItemApproved, s.Items()[0].Status)
	got, err := s.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastEmittedAt)
}

func TestRunUnmatchedStaysPending(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "desk", Category: "politics"})
	addItem(t, s, src, "https://example.com/politics/1")
	prober := okProber()
	engine := New(s, prober, Options{AutoApproveCategories: []string{"official"}})

	for range 3 {
		results, err := engine.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, OutcomeHeld, results[0].Outcome)
	}
	assert.Empty(t, s.Posts())
	assert.Equal(t, models.ItemPending, s.Items()[0].Status)
	assert.Empty(t, prober.calls, "held items are never probed")
}

func TestRunCategoryOverridesSourceFlag(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "gov", Category: "Official", AutoApprove: false})
	addItem(t, s, src, "https://gov.example/notice")

	results, err := New(s, okProber(), Options{AutoApproveCategories: []string{" official "}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, results[0].Outcome)
	assert.Len(t, s.Posts(), 1)
}

func TestRunProbeOutcomesLeavePending(t *testing.T) {
	tests := []struct {
		name   string
		prober *fakeProber
		want   Outcome
	}{
		{"not embeddable", &fakeProber{result: &probe.Result{Details: "robots noindex"}}, OutcomeNotEmbeddable},
		{"probe error", &fakeProber{err: errors.New("connection reset")}, OutcomeProbeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			src := addSource(t, s, &models.FeedSource{Name: "wire", AutoApprove: true})
			addItem(t, s, src, "https://example.com/x")

			results, err := New(s, tt.prober, Options{}).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, results[0].Outcome)
			assert.Empty(t, s.Posts())
			assert.Equal(t, models.ItemPending, s.Items()[0].Status)
		})
	}
}

func TestRunRateLimit(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "busy", AutoApprove: true, Tuning: models.Tuning{MaxPerHour: 2}})
	addItem(t, s, src, "https://example.com/1")
	addItem(t, s, src, "https://example.com/2")
	addItem(t, s, src, "https://example.com/3")

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	engine := New(s, okProber(), Options{})
	engine.now = func() time.Time { return now }

	results, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomePromoted, OutcomeRateLimited, OutcomeRateLimited}, outcomes(results))

	// Spacing is 30m; the persisted last emission survives a new engine.
	engine = New(s, okProber(), Options{})
	engine.now = func() time.Time { return now.Add(31 * time.Minute) }
	results, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomePromoted, OutcomeRateLimited}, outcomes(results))
}

func TestRunPagesPastHeldItems(t *testing.T) {
	s := memory.New()
	desk := addSource(t, s, &models.FeedSource{Name: "desk", Category: "politics"})
	wire := addSource(t, s, &models.FeedSource{Name: "wire", Category: "news", AutoApprove: true})
	for i := range 3 {
		addItem(t, s, desk, fmt.Sprintf("https://example.com/politics/%d", i))
	}
	fresh := addItem(t, s, wire, "https://example.com/news/1")

	results, err := New(s, okProber(), Options{BatchSize: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeHeld, OutcomeHeld, OutcomeHeld, OutcomePromoted}, outcomes(results))

	posts := s.Posts()
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].FeedItemID)
	assert.Equal(t, fresh.ID, *posts[0].FeedItemID)

	pending, err := s.ListPendingItems(context.Background(), models.PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestRunPagesPastNotEmbeddableItems(t *testing.T) {
	s := memory.New()
	wire := addSource(t, s, &models.FeedSource{Name: "wire", AutoApprove: true})
	for i := range 4 {
		addItem(t, s, wire, fmt.Sprintf("https://blocked.example.com/%d", i))
	}
	addItem(t, s, wire, "https://example.com/ok")
	prober := &hostProber{blocked: "blocked.example.com"}

	engine := New(s, prober, Options{BatchSize: 2})
	results, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, OutcomePromoted, results[4].Outcome)
	assert.Len(t, s.Posts(), 1)

	// A second run still walks every held item and finds nothing new.
	results, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Outcome{
		OutcomeNotEmbeddable, OutcomeNotEmbeddable, OutcomeNotEmbeddable, OutcomeNotEmbeddable,
	}, outcomes(results))
	assert.Len(t, s.Posts(), 1)
}

type hostProber struct {
	blocked string
}

func (p *hostProber) Probe(_ context.Context, rawURL string, _ models.PostType) (*probe.Result, error) {
	if strings.Contains(rawURL, p.blocked) {
		return &probe.Result{Details: "frame-ancestors none"}, nil
	}
	return &probe.Result{Embeddable: true, Details: "ok"}, nil
}

func TestRunDuplicatePostRejectsItem(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "wire", AutoApprove: true})
	it := addItem(t, s, src, "https://example.com/dup")
	require.NoError(t, s.InsertPost(context.Background(), &models.Post{
		URL: it.URL, URLFingerprint: it.URLFingerprint, Title: "direct", PublishedAt: time.Now(),
	}))

	results, err := New(s, okProber(), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, results[0].Outcome)
	assert.Equal(t, models.ItemRejected, s.Items()[0].Status)

	rep := Report(results)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Duplicated)
}

func TestRunCancelled(t *testing.T) {
	s := memory.New()
	src := addSource(t, s, &models.FeedSource{Name: "wire", AutoApprove: true})
	addItem(t, s, src, "https://example.com/1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := New(s, okProber(), Options{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Equal(t, models.ItemPending, s.Items()[0].Status)
}

func TestReport(t *testing.T) {
	rep := Report([]ItemResult{
		{Outcome: OutcomePromoted},
		{Outcome: OutcomeHeld},
		{Outcome: OutcomeProbeFailed, Err: errors.New("timeout")},
		{Outcome: OutcomeError, Err: errors.New("db down")},
	})
	assert.Equal(t, 4, rep.Processed)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.Errored)
	assert.Len(t, rep.Errors, 2)
}

func TestClassify(t *testing.T) {
	tests := map[string]models.PostType{
		"https://youtube.com/watch?v=1":      models.PostVideo,
		"https://youtu.be/abc":               models.PostVideo,
		"https://x.com/someone/status/1":     models.PostSocial,
		"https://old.reddit.com/r/news":      models.PostSocial,
		"https://open.spotify.com/episode/1": models.PostAudio,
		"https://cdn.example.com/photo.JPG":  models.PostImage,
		"https://example.com/articles/1":     models.PostArticle,
		"https://notyoutube.com/watch":       models.PostArticle,
	}
	for in, want := range tests {
		assert.Equal(t, want, Classify(in), in)
	}
}

func outcomes(results []ItemResult) []Outcome {
	out := make([]Outcome, len(results))
	for i, r := range results {
		out[i] = r.Outcome
	}
	return out
}
