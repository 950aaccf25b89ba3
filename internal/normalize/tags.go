package normalize

import (
	"sort"
	"strings"
)

// TagRule assigns Tag when any keyword occurs in an item's text.
type TagRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
}

// DefaultTagTable is the global keyword table, checked in order.
var DefaultTagTable = []TagRule{
	{Tag: "politics", Keywords: []string{"election", "parliament", "council", "minister", "政治", "選挙", "首相", "国会"}},
	{Tag: "economy", Keywords: []string{"budget", "inflation", "tax", "market", "economy", "経済", "増税", "株価", "予算"}},
	{Tag: "technology", Keywords: []string{"software", "artificial intelligence", "startup", "smartphone", "technology", "技術", "アプリ"}},
	{Tag: "weather", Keywords: []string{"storm", "typhoon", "rainfall", "heatwave", "forecast", "台風", "大雨", "天気"}},
	{Tag: "sports", Keywords: []string{"match", "league", "tournament", "olympic", "goal", "試合", "優勝", "野球", "サッカー"}},
	{Tag: "health", Keywords: []string{"hospital", "vaccine", "virus", "health", "病院", "感染", "医療"}},
	{Tag: "entertainment", Keywords: []string{"film", "concert", "album", "drama", "映画", "ドラマ", "ライブ"}},
	{Tag: "transport", Keywords: []string{"ferry", "railway", "airport", "traffic", "運休", "鉄道", "渋滞"}},
}

// MergeTagRules puts per-source hints, sorted by tag, ahead of base.
func MergeTagRules(hints map[string][]string, base []TagRule) []TagRule {
	if len(hints) == 0 {
		return base
	}
	tags := make([]string, 0, len(hints))
	for tag := range hints {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	out := make([]TagRule, 0, len(hints)+len(base))
	for _, tag := range tags {
		out = append(out, TagRule{Tag: tag, Keywords: hints[tag]})
	}
	return append(out, base...)
}

// InferTags returns at most limit distinct tags whose keywords appear in
// text, in rule order. Matching is case-folded.
func InferTags(rules []TagRule, text string, limit int) []string {
	if limit <= 0 || text == "" {
		return nil
	}
	folded := fold(text)

	var out []string
	seen := make(map[string]bool)
	for _, rule := range rules {
		if rule.Tag == "" || seen[rule.Tag] {
			continue
		}
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(folded, fold(kw)) {
				seen[rule.Tag] = true
				out = append(out, rule.Tag)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}
