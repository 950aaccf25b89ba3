package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Embedded date and time fragments. Input is NFKC-normalized first, so
// full-width digits are already ASCII.
var reDateTime = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日`),
	regexp.MustCompile(`\d{1,2}月\d{1,2}日`),
	regexp.MustCompile(`\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}`),
	regexp.MustCompile(`\d{1,2}時\d{1,2}分`),
	regexp.MustCompile(`\d{1,2}:\d{2}(:\d{2})?`),
}

// fold applies NFKC and Unicode case folding. cases.Caser is stateful, so
// a new one is built per call.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// CanonicalTitle reduces a headline to the form compared for duplicates.
func CanonicalTitle(title string) string {
	s := fold(title)
	for _, re := range reDateTime {
		s = re.ReplaceAllString(s, " ")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// TitleFingerprint fingerprints an already canonical title. Empty titles
// have no fingerprint.
func TitleFingerprint(canonical string) string {
	if canonical == "" {
		return ""
	}
	return Fingerprint(canonical)
}
