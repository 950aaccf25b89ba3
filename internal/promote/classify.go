package promote

import (
	"net/url"
	"path"
	"strings"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

var hostTypes = []struct {
	domain string
	typ    models.PostType
}{
	{"youtube.com", models.PostVideo},
	{"youtu.be", models.PostVideo},
	{"vimeo.com", models.PostVideo},
	{"nicovideo.jp", models.PostVideo},
	{"tiktok.com", models.PostVideo},
	{"twitch.tv", models.PostVideo},
	{"twitter.com", models.PostSocial},
	{"x.com", models.PostSocial},
	{"instagram.com", models.PostSocial},
	{"facebook.com", models.PostSocial},
	{"threads.net", models.PostSocial},
	{"bsky.app", models.PostSocial},
	{"reddit.com", models.PostSocial},
	{"soundcloud.com", models.PostAudio},
	{"open.spotify.com", models.PostAudio},
	{"podcasts.apple.com", models.PostAudio},
	{"i.imgur.com", models.PostImage},
	{"flickr.com", models.PostImage},
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true}

// Classify derives a post type from a canonical URL.
func Classify(rawURL string) models.PostType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.PostArticle
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hostTypes {
		if host == h.domain || strings.HasSuffix(host, "."+h.domain) {
			return h.typ
		}
	}
	if imageExts[strings.ToLower(path.Ext(u.Path))] {
		return models.PostImage
	}
	return models.PostArticle
}
