// Package parser turns raw RSS 2.0, Atom and JSON Feed documents into a
// uniform item sequence.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Format is a feed document format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// ParseFormat validates a declared format; empty means auto.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, true
	case FormatRSS, FormatAtom, FormatJSON:
		return f, true
	}
	return "", false
}

// ErrUnsupportedFormat is returned when the bytes are not any known feed format.
var ErrUnsupportedFormat = errors.New("parser: unsupported feed format")

// ParseError reports a recognized document that could not be decoded.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser: malformed %s document: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawItem is one entry as found in the feed.
type RawItem struct {
	GUID        string
	Title       string
	Link        string
	Body        string
	Author      string
	PublishedAt time.Time
	Categories  []string
	ImageURL    string
}

// Feed is a parsed document.
type Feed struct {
	Format Format
	Title  string
	Link   string
	Items  []RawItem
}

// reImgSrc matches src attribute in <img> tags.
var reImgSrc = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)

// Detect sniffs the document format from its bytes.
func Detect(body []byte) Format {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return FormatRSS
	case gofeed.FeedTypeAtom:
		return FormatAtom
	case gofeed.FeedTypeJSON:
		return FormatJSON
	}
	return ""
}

// Parse decodes body. The detected format always wins over the declared
// one; callers compare Feed.Format against their declaration. Relative item
// links resolve against the feed link, or base when the feed has none.
func Parse(body []byte, base string) (*Feed, error) {
	format := Detect(body)
	if format == "" {
		return nil, ErrUnsupportedFormat
	}

	// gofeed.Parser keeps decoder state, so each call gets its own.
	gf, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Format: format, Err: err}
	}

	feed := &Feed{
		Format: format,
		Title:  strings.TrimSpace(gf.Title),
		Link:   strings.TrimSpace(gf.Link),
		Items:  make([]RawItem, 0, len(gf.Items)),
	}

	baseURL := resolveBase(feed.Link, base)
	for _, it := range gf.Items {
		if it == nil {
			continue
		}
		feed.Items = append(feed.Items, convert(it, baseURL))
	}
	return feed, nil
}

func resolveBase(feedLink, fallback string) *url.URL {
	for _, candidate := range []string{feedLink, fallback} {
		if u, err := url.Parse(candidate); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

func convert(it *gofeed.Item, base *url.URL) RawItem {
	link := it.Link
	if link == "" && len(it.Links) > 0 {
		link = it.Links[0]
	}
	body := it.Content
	if strings.TrimSpace(body) == "" {
		body = it.Description
	}

	raw := RawItem{
		GUID:        strings.TrimSpace(it.GUID),
		Title:       strings.TrimSpace(it.Title),
		Link:        resolve(base, link),
		Body:        strings.TrimSpace(body),
		Author:      author(it),
		PublishedAt: published(it),
		Categories:  categories(it.Categories),
	}
	if raw.GUID == "" {
		raw.GUID = raw.Link
	}
	if img := imageURL(it); img != "" {
		raw.ImageURL = resolve(base, img)
	}
	return raw
}

func author(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return strings.TrimSpace(it.Author.Name)
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// published prefers gofeed's parsed times and falls back to a few extra
// layouts. Unparseable dates yield the zero time.
func published(it *gofeed.Item) time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed.UTC()
	}
	if it.UpdatedParsed != nil {
		return it.UpdatedParsed.UTC()
	}
	if t := parseDate(it.Published); !t.IsZero() {
		return t.UTC()
	}
	return parseDate(it.Updated).UTC()
}

func categories(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// imageURL checks the item image, image enclosures, media:content and
// finally the first <img> in the body.
func imageURL(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, ext := range media["content"] {
			u := ext.Attrs["url"]
			typ := ext.Attrs["type"]
			if u != "" && (typ == "" || strings.HasPrefix(typ, "image/")) {
				return u
			}
		}
	}
	for _, html := range []string{it.Content, it.Description} {
		if m := reImgSrc.FindStringSubmatch(html); len(m) >= 2 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// parseDate tries several common date formats used in RSS and Atom feeds.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"02 Jan 2006 15:04:05 -0700",
		"2006/01/02 15:04",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
