package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, div, li, br, tr, blockquote, h1, h2, h3, h4, h5, h6, article, section"

// CleanContent strips markup from html and normalizes whitespace, keeping
// one line per block element.
func CleanContent(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseLines(html)
	}
	doc.Find("script, style, noscript, iframe, template").Remove()
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	return collapseLines(doc.Text())
}

func collapseLines(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.Join(strings.Fields(line), " "); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n")
}

const ellipsis = "…"

func isTerminator(r rune) bool {
	switch r {
	case '。', '．', '.', '!', '?', '！', '？':
		return true
	}
	return false
}

// Summarize cuts content to about target runes. The cut goes right after the
// nearest sentence terminator at or before target, looking back at most
// window runes; failing that, the first terminator in the window runes past
// target. Otherwise the text is cut at target and an ellipsis appended.
func Summarize(content string, target, window int) string {
	text := strings.Join(strings.Fields(content), " ")
	runes := []rune(text)
	if target <= 0 || len(runes) <= target {
		return text
	}
	if window < 0 {
		window = 0
	}

	for n := target; n >= max(target-window, 1); n-- {
		if isTerminator(runes[n-1]) {
			return string(runes[:n])
		}
	}
	for n := target + 1; n <= min(target+window, len(runes)); n++ {
		if isTerminator(runes[n-1]) {
			return string(runes[:n])
		}
	}
	return strings.TrimRight(string(runes[:target]), " ") + ellipsis
}
