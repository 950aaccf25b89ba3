package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/dedup"
	"github.com/Saul-Punybz/newsdesk/internal/fetch"
	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/models/memory"
	"github.com/Saul-Punybz/newsdesk/internal/normalize"
)

type entry struct {
	title, link, body string
}

func rssFeed(entries ...entry) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title><link>https://feeds.example.com/</link>`)
	for _, e := range entries {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description></item>", e.title, e.link, e.body)
	}
	b.WriteString(`</channel></rss>`)
	return []byte(b.String())
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	block  bool
	calls  []string
	opts   []fetch.Options
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[string][]byte), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.opts = append(f.opts, opts)
	body, err, block := f.bodies[rawURL], f.errs[rawURL], f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &fetch.Error{Kind: fetch.KindTimeout, URL: rawURL, Err: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, &fetch.Error{Kind: fetch.KindBadStatus, URL: rawURL, StatusCode: 404}
	}
	return &fetch.Result{Body: body, ContentType: "application/rss+xml", StatusCode: 200, FinalURL: rawURL}, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []uuid.UUID
}

func (a *fakeArchive) StoreFeedPayload(_ context.Context, sourceID uuid.UUID, _ time.Time, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, sourceID)
	return "k", nil
}

func addSource(t *testing.T, s *memory.Store, name, endpoint string, tuning models.Tuning) models.FeedSource {
	t.Helper()
	src := &models.FeedSource{
		Name:         name,
		Endpoint:     endpoint,
		Format:       "rss",
		Category:     "news",
		Enabled:      true,
		AutoApprove:  true,
		PollInterval: time.Hour,
		Tuning:       tuning,
	}
	require.NoError(t, s.UpsertSource(context.Background(), src))
	return *src
}

func newRunner(s *memory.Store, f Fetcher, opts Options) *Runner {
	return New(Deps{
		Sources: s,
		Items:   s,
		Fetcher: f,
		Dedup:   dedup.New(s, dedup.DefaultOptions()),
	}, opts)
}

func TestRunCanonicalizesTrackedURL(t *testing.T) {
	s := memory.New()
	f := newFakeFetcher()
	src := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{})
	f.bodies[src.Endpoint] = rssFeed(entry{"Budget passes", "http://www.example.com/a?utm_source=x", "<p>The council voted.</p>"})

	res, err := newRunner(s, f, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)
	rep := res.Report()
	assert.Equal(t, 1, rep.Created)
	assert.Empty(t, rep.Errors)

	items := s.Items()
	require.Len(t, items, 1)
	_, fp, err := normalize.URLFingerprint("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, fp, items[0].URLFingerprint)
	assert.Equal(t, models.ItemPending, items[0].Status)
	assert.Equal(t, "The council voted.", items[0].Content)
	assert.Equal(t, src.ID, items[0].SourceID)

	got, err := s.GetSource(context.Background(), src.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPolledAt)
	assert.Zero(t, got.ErrorCount)
}

func TestRunReportsCanonicalDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := newFakeFetcher()
	a := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{})
	f.bodies[a.Endpoint] = rssFeed(entry{"Budget passes", "http://www.example.com/a?utm_source=x", "x"})
	_, err := newRunner(s, f, DefaultOptions()).Run(ctx)
	require.NoError(t, err)

	b := addSource(t, s, "b", "https://feeds.example.com/b", models.Tuning{})
	f.bodies[b.Endpoint] = rssFeed(entry{"Another headline entirely", "https://example.com/a", "y"})
	res, err := newRunner(s, f, DefaultOptions()).Run(ctx)
	require.NoError(t, err)

	rep := res.Report()
	assert.Equal(t, 1, rep.Sources)
	assert.Equal(t, 1, rep.Duplicated)
	assert.Zero(t, rep.Created)
	assert.Len(t, s.Items(), 1)
	require.Len(t, res.Sources[0].Items, 1)
	assert.Equal(t, dedup.ReasonURL, res.Sources[0].Items[0].Reason)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := newFakeFetcher()
	src := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{})
	f.bodies[src.Endpoint] = rssFeed(
		entry{"First story headline", "https://example.com/1", "one"},
		entry{"Second story headline", "https://example.com/2", "two"},
	)

	r := newRunner(s, f, DefaultOptions())
	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report().Created)

	later := time.Now().Add(2 * time.Hour)
	r.now = func() time.Time { return later }
	res, err = r.Run(ctx)
	require.NoError(t, err)
	rep := res.Report()
	assert.Equal(t, 1, rep.Sources)
	assert.Zero(t, rep.Created)
	assert.Equal(t, 2, rep.Duplicated)
	assert.Len(t, s.Items(), 2)
}

func TestRunFlagsDateStrippedTitleDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := newFakeFetcher()
	a := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{})
	f.bodies[a.Endpoint] = rssFeed(entry{"石破首相、増税方針を表明 2025/01/10", "https://a.example.com/1", "x"})
	_, err := newRunner(s, f, DefaultOptions()).Run(ctx)
	require.NoError(t, err)

	b := addSource(t, s, "b", "https://feeds.example.com/b", models.Tuning{})
	f.bodies[b.Endpoint] = rssFeed(entry{"石破首相 増税方針を表明", "https://b.example.com/2", "y"})
	res, err := newRunner(s, f, DefaultOptions()).Run(ctx)
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	require.Len(t, res.Sources[0].Items, 1)
	it := res.Sources[0].Items[0]
	assert.Equal(t, OutcomeDuplicate, it.Outcome)
	assert.Equal(t, dedup.ReasonTitle, it.Reason)
	assert.Equal(t, s.Items()[0].ID, it.MatchedID)
}

func TestRunIsolatesSourceFailures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := newFakeFetcher()
	blocked := addSource(t, s, "blocked", "https://internal.example.com/feed", models.Tuning{})
	garbage := addSource(t, s, "garbage", "https://feeds.example.com/garbage", models.Tuning{})
	good := addSource(t, s, "good", "https://feeds.example.com/good", models.Tuning{})
	f.errs[blocked.Endpoint] = &fetch.Error{Kind: fetch.KindBlocked, URL: blocked.Endpoint}
	f.bodies[garbage.Endpoint] = []byte("this is not a feed")
	f.bodies[good.Endpoint] = rssFeed(entry{"Healthy source headline", "https://example.com/ok", "ok"})

	res, err := newRunner(s, f, Options{Concurrency: 3}).Run(ctx)
	require.NoError(t, err)

	rep := res.Report()
	assert.Equal(t, 3, rep.Sources)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 2, rep.Errored)
	require.Len(t, rep.Errors, 2)

	for _, id := range []uuid.UUID{blocked.ID, garbage.ID} {
		src, err := s.GetSource(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, src.ErrorCount, src.Name)
		assert.NotNil(t, src.LastPolledAt, src.Name)
	}
	ok, err := s.GetSource(ctx, good.ID)
	require.NoError(t, err)
	assert.Zero(t, ok.ErrorCount)
}

func TestRunDefersSourcesAfterDeadline(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := newFakeFetcher()
	f.block = true
	for i := range 3 {
		addSource(t, s, fmt.Sprintf("s%d", i), fmt.Sprintf("https://feeds.example.com/%d", i), models.Tuning{})
	}

	res, err := newRunner(s, f, Options{Concurrency: 1, RunTimeout: 50 * time.Millisecond}).Run(ctx)
	require.NoError(t, err)

	rep := res.Report()
	assert.Equal(t, 1, rep.Sources)
	assert.Equal(t, 2, rep.Deferred)
	assert.Equal(t, 1, rep.Errored)
	assert.Len(t, f.calls, 1)

	var started models.FeedSource
	for _, sr := range res.Sources {
		if !sr.Deferred {
			started = sr.Source
			var fe *fetch.Error
			require.True(t, errors.As(sr.Err, &fe))
			assert.Equal(t, fetch.KindTimeout, fe.Kind)
			continue
		}
		src, err := s.GetSource(ctx, sr.Source.ID)
		require.NoError(t, err)
		assert.Nil(t, src.LastPolledAt, "deferred sources stay due")
	}
	src, err := s.GetSource(ctx, started.ID)
	require.NoError(t, err)
	assert.NotNil(t, src.LastPolledAt, "poll is recorded past the deadline")
}

func TestRunAppliesTuning(t *testing.T) {
	s := memory.New()
	f := newFakeFetcher()
	src := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{
		MaxItems:      1,
		AllowHTTP:     true,
		KeywordHints:  map[string][]string{"local": {"council"}},
		SummaryLength: 12,
	})
	f.bodies[src.Endpoint] = rssFeed(
		entry{"Council meets tonight", "https://example.com/1", "The council meets tonight to decide"},
		entry{"Never read headline", "https://example.com/2", "skipped"},
	)
	archive := &fakeArchive{}

	r := New(Deps{Sources: s, Items: s, Fetcher: f, Dedup: dedup.New(s, dedup.DefaultOptions()), Archive: archive}, DefaultOptions())
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report().Processed)

	items := s.Items()
	require.Len(t, items, 1)
	require.NotEmpty(t, items[0].Tags)
	assert.Equal(t, "local", items[0].Tags[0])
	assert.Equal(t, "The council…", items[0].Summary)
	assert.ElementsMatch(t, []string{"https", "http"}, f.opts[0].AllowedSchemes)
	assert.Equal(t, []uuid.UUID{src.ID}, archive.keys)
}

func TestRunSkipsUnusableLinks(t *testing.T) {
	s := memory.New()
	f := newFakeFetcher()
	src := addSource(t, s, "a", "https://feeds.example.com/a", models.Tuning{})
	f.bodies[src.Endpoint] = rssFeed(
		entry{"Has no link at all", "", "x"},
		entry{"Has a usable link", "https://example.com/fine", "y"},
	)

	res, err := newRunner(s, f, DefaultOptions()).Run(context.Background())
	require.NoError(t, err)
	rep := res.Report()
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, rep.Errors)
}

func TestRunListFailureAborts(t *testing.T) {
	r := New(Deps{Sources: failingSources{}, Fetcher: newFakeFetcher()}, DefaultOptions())
	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

type failingSources struct{}

func (failingSources) ListDueSources(context.Context, time.Time, int) ([]models.FeedSource, error) {
	return nil, errors.New("connection refused")
}

func (failingSources) RecordPoll(context.Context, uuid.UUID, time.Time, bool) error { return nil }
