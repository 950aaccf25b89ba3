// Package fetch retrieves feed documents over HTTP while refusing to reach
// loopback, private, link-local and other internal addresses.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxBytes = 5 << 20
	maxRedirects    = 5
	defaultAgent    = "newsdesk/1.0"
)

// Options bound one fetch.
type Options struct {
	Timeout        time.Duration
	MaxBytes       int64
	AllowedSchemes []string
}

// DefaultOptions allows https only with a 15s timeout and a 5 MiB cap.
func DefaultOptions() Options {
	return Options{Timeout: defaultTimeout, MaxBytes: defaultMaxBytes, AllowedSchemes: []string{"https"}}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if len(o.AllowedSchemes) == 0 {
		o.AllowedSchemes = []string{"https"}
	}
	return o
}

// Result is a successful response body.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Fetcher performs guarded GET requests. It is safe for concurrent use.
type Fetcher struct {
	resolver  Resolver
	dialer    *net.Dialer
	transport *http.Transport
	userAgent string

	// allowLoopback lets in-package tests reach httptest servers.
	allowLoopback bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		resolver:  net.DefaultResolver,
		dialer:    &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
		userAgent: defaultAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.transport = &http.Transport{
		// Environment proxies would dial on our behalf and bypass the guard.
		Proxy:                 nil,
		DialContext:           f.dialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return f
}

// Transport returns the guarded round tripper for other outbound clients.
func (f *Fetcher) Transport() http.RoundTripper {
	return f.transport
}

// UserAgent returns the configured User-Agent.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Fetch retrieves rawURL. Every failure is an *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}
	if err := checkURL(u, opts.AllowedSchemes); err != nil {
		return nil, err
	}
	if ip, err := netip.ParseAddr(u.Hostname()); err == nil && f.blocked(ip) {
		return nil, &Error{Kind: KindBlocked, URL: u.Redacted(), Err: errors.New("literal address not allowed")}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: u.Redacted(), Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/json, application/xml, text/xml;q=0.9, */*;q=0.5")

	client := &http.Client{
		Transport: f.transport,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				status := 0
				if next.Response != nil {
					status = next.Response.StatusCode
				}
				return &Error{Kind: KindBadStatus, URL: next.URL.Redacted(), StatusCode: status, Err: errors.New("too many redirects")}
			}
			return checkURL(next.URL, opts.AllowedSchemes)
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(ctx, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindBadStatus, URL: u.Redacted(), StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > opts.MaxBytes {
		return nil, &Error{Kind: KindOversized, URL: u.Redacted(), Err: fmt.Errorf("content length %d exceeds %d", resp.ContentLength, opts.MaxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, classify(ctx, u, err)
	}
	if int64(len(body)) > opts.MaxBytes {
		return nil, &Error{Kind: KindOversized, URL: u.Redacted(), Err: fmt.Errorf("body exceeds %d bytes", opts.MaxBytes)}
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// classify maps a transport error onto the fetch taxonomy.
func classify(ctx context.Context, u *url.URL, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: u.Redacted(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: u.Redacted(), Err: err}
	}
	return &Error{Kind: KindNetwork, URL: u.Redacted(), Err: err}
}
