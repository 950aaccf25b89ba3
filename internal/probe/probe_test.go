package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Plain title</title>
			<meta property="og:title" content="OG title">
			<meta property="og:image" content="/thumb.jpg">
			</head><body>hi</body></html>`))
	})
	mux.HandleFunc("/noindex", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>T</title><meta name="robots" content="index, NoSnippet"></head></html>`))
	})
	mux.HandleFunc("/header-robots", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Robots-Tag", "googlebot: noindex")
		_, _ = w.Write([]byte(`<html><head><title>T</title></head></html>`))
	})
	mux.HandleFunc("/untitled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>no title here</body></html>`))
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	srv := newServer(t)
	p := New(http.DefaultTransport)

	tests := []struct {
		path       string
		postType   models.PostType
		embeddable bool
		details    string
	}{
		{"/ok", models.PostArticle, true, "ok"},
		{"/noindex", models.PostArticle, false, "robots nosnippet"},
		{"/header-robots", models.PostArticle, false, "robots noindex"},
		{"/untitled", models.PostArticle, false, "no title"},
		{"/image.png", models.PostImage, true, "media image/png"},
		{"/doc.pdf", models.PostArticle, false, "unsupported content type application/pdf"},
		{"/gone", models.PostArticle, false, "status 410"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := p.Probe(context.Background(), srv.URL+tt.path, tt.postType)
			require.NoError(t, err)
			assert.Equal(t, tt.embeddable, res.Embeddable)
			assert.Equal(t, tt.details, res.Details)
		})
	}
}

func TestProbeMetadata(t *testing.T) {
	srv := newServer(t)
	res, err := New(http.DefaultTransport).Probe(context.Background(), srv.URL+"/ok", models.PostArticle)
	require.NoError(t, err)
	assert.Equal(t, "OG title", res.Title)
	assert.Equal(t, srv.URL+"/thumb.jpg", res.Thumbnail)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestProbeTransportError(t *testing.T) {
	srv := newServer(t)
	url := srv.URL + "/ok"
	srv.Close()

	_, err := New(http.DefaultTransport).Probe(context.Background(), url, models.PostArticle)
	require.Error(t, err)
}

func TestProbeContextCancel(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(http.DefaultTransport).Probe(ctx, srv.URL+"/slow", models.PostArticle)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlockingDirective(t *testing.T) {
	assert.Equal(t, "none", blockingDirective("NONE"))
	assert.Equal(t, "noindex", blockingDirective("otherbot: noindex, nofollow"))
	assert.Empty(t, blockingDirective("index, follow, max-image-preview:large"))
}
