// Package normalize derives the canonical forms, fingerprints, summaries and
// tags used for deduplication and publishing.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// trackingParams is the set of URL query parameters commonly used for tracking
// that should be stripped during canonicalization. Any utm_ key is dropped too.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"gclsrc":  true,
	"dclid":   true,
	"msclkid": true,
	"twclid":  true,
	"yclid":   true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"_ga":     true,
	"_gl":     true,
	"_hsenc":  true,
	"_hsmi":   true,
	"ref_src": true,
	"spm":     true,
}

// hostPrefixes are stripped from the front of a host while a dotted
// remainder is left behind.
var hostPrefixes = []string{"www.", "m.", "mobile.", "sp.", "amp."}

// ErrInvalidURL is returned for input that cannot name a web page.
var ErrInvalidURL = errors.New("normalize: invalid url")

func isTracking(key string) bool {
	k := strings.ToLower(key)
	return trackingParams[k] || strings.HasPrefix(k, "utm_")
}

func stripHostPrefixes(host string) string {
	for {
		stripped := false
		for _, p := range hostPrefixes {
			rest, ok := strings.CutPrefix(host, p)
			if ok && strings.Contains(rest, ".") {
				host = rest
				stripped = true
				break
			}
		}
		if !stripped {
			return host
		}
	}
}

// CanonicalURL rewrites rawURL into the form used for URL fingerprints:
// https scheme, lowercase host without userinfo, default port or mobile
// prefixes, no tracking parameters, sorted query, no fragment and no
// trailing slash. It is idempotent.
func CanonicalURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	host = stripHostPrefixes(host)
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := u.EscapedPath()
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	query := u.Query()
	for key := range query {
		if isTracking(key) {
			query.Del(key)
		}
	}

	out := url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     unescaped,
		RawPath:  path,
		RawQuery: query.Encode(),
	}
	return out.String(), nil
}

// Fingerprint returns the first 16 bytes of the SHA-256 of s, hex encoded.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// URLFingerprint canonicalizes rawURL and fingerprints the result.
func URLFingerprint(rawURL string) (canonical, fingerprint string, err error) {
	canonical, err = CanonicalURL(rawURL)
	if err != nil {
		return "", "", err
	}
	return canonical, Fingerprint(canonical), nil
}
