// Package probe checks whether a page can be embedded as a post by reading
// its response headers and Open Graph metadata.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 2 << 20
)

// Result describes an embeddability probe.
type Result struct {
	Embeddable bool
	Details    string
	Thumbnail  string
	Title      string
	StatusCode int
}

// Prober visits candidate URLs with a colly collector.
type Prober struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Prober) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithTimeout bounds each probe request.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a Prober. transport should be the fetcher's guarded round
// tripper so probes obey the same address restrictions.
func New(transport http.RoundTripper, opts ...Option) *Prober {
	p := &Prober{transport: transport, userAgent: "newsdesk/1.0", timeout: defaultTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// newCollector creates a fresh collector per probe to avoid state leakage.
func (p *Prober) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(p.userAgent),
		colly.AllowURLRevisit(),
		colly.MaxDepth(1),
		colly.MaxBodySize(maxBodySize),
	)
	if p.transport != nil {
		c.WithTransport(p.transport)
	}
	c.SetRequestTimeout(p.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8")
	})
	return c
}

type page struct {
	status      int
	contentType string
	robots      []string
	title       string
	ogTitle     string
	thumbnail   string
}

// Probe fetches rawURL and decides whether it can be embedded. HTTP error
// statuses yield a non-embeddable result; transport failures yield an error.
func (p *Prober) Probe(ctx context.Context, rawURL string, postType models.PostType) (*Result, error) {
	c := p.newCollector()

	var (
		mu     sync.Mutex
		pg     page
		prbErr error
	)

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		pg.status = r.StatusCode
		pg.contentType = r.Headers.Get("Content-Type")
		if v := r.Headers.Get("X-Robots-Tag"); v != "" {
			pg.robots = append(pg.robots, v)
		}
	})

	c.OnHTML("title", func(e *colly.HTMLElement) {
		mu.Lock()
		if pg.title == "" {
			pg.title = strings.TrimSpace(e.Text)
		}
		mu.Unlock()
	})

	c.OnHTML("meta", func(e *colly.HTMLElement) {
		key := strings.ToLower(e.Attr("property"))
		if key == "" {
			key = strings.ToLower(e.Attr("name"))
		}
		content := strings.TrimSpace(e.Attr("content"))
		if content == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch key {
		case "og:title", "twitter:title":
			if pg.ogTitle == "" {
				pg.ogTitle = content
			}
		case "og:image", "og:image:url", "twitter:image":
			if pg.thumbnail == "" {
				pg.thumbnail = e.Request.AbsoluteURL(content)
			}
		case "robots", "googlebot":
			pg.robots = append(pg.robots, content)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.StatusCode > 0 {
			pg.status = r.StatusCode
			return
		}
		prbErr = fmt.Errorf("probe: fetch %s: %w", rawURL, err)
	})

	// Respect context cancellation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(rawURL); err != nil {
			mu.Lock()
			if prbErr == nil && pg.status == 0 {
				prbErr = fmt.Errorf("probe: visit %s: %w", rawURL, err)
			}
			mu.Unlock()
		}
		c.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	mu.Lock()
	defer mu.Unlock()
	if prbErr != nil {
		return nil, prbErr
	}

	res := judge(pg, postType)
	slog.Debug("probe: checked", "url", rawURL, "status", res.StatusCode, "embeddable", res.Embeddable, "details", res.Details)
	return res, nil
}

// judge applies the embeddability rules to a fetched page.
func judge(pg page, postType models.PostType) *Result {
	res := &Result{
		StatusCode: pg.status,
		Thumbnail:  pg.thumbnail,
		Title:      pg.ogTitle,
	}
	if res.Title == "" {
		res.Title = pg.title
	}

	if pg.status < 200 || pg.status > 299 {
		res.Details = fmt.Sprintf("status %d", pg.status)
		return res
	}
	for _, r := range pg.robots {
		if d := blockingDirective(r); d != "" {
			res.Details = "robots " + d
			return res
		}
	}

	mediaType, _, _ := mime.ParseMediaType(pg.contentType)
	switch {
	case strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "video/") && postType == models.PostVideo,
		strings.HasPrefix(mediaType, "audio/") && postType == models.PostAudio:
		res.Embeddable = true
		res.Details = "media " + mediaType
		return res
	case mediaType == "" || strings.Contains(mediaType, "html"):
	default:
		res.Details = "unsupported content type " + mediaType
		return res
	}

	if res.Title == "" {
		res.Details = "no title"
		return res
	}
	res.Embeddable = true
	res.Details = "ok"
	return res
}

// blockingDirective returns the first robots directive that forbids reuse.
func blockingDirective(value string) string {
	for _, part := range strings.Split(strings.ToLower(value), ",") {
		d := strings.TrimSpace(part)
		// X-Robots-Tag may carry a "botname:" prefix.
		if i := strings.LastIndex(d, ":"); i >= 0 {
			d = strings.TrimSpace(d[i+1:])
		}
		switch d {
		case "noindex", "nosnippet", "none":
			return d
		}
	}
	return ""
}
