package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanContent(t *testing.T) {
	html := `<div><p>First &amp; <b>bold</b>   para.</p><script>alert(1)</script>
		<style>p{}</style><p>Second<br>line</p><ul><li>one</li><li>two</li></ul></div>`
	assert.Equal(t, "First & bold para.\nSecond\nline\none\ntwo", CleanContent(html))
	assert.Equal(t, "plain text", CleanContent("  plain   text "))
	assert.Empty(t, CleanContent("   "))
}

func TestSummarizeShortContent(t *testing.T) {
	assert.Equal(t, "Short text.", Summarize("Short\n text.", 160, 20))
}

func TestSummarizePrefersTerminator(t *testing.T) {
	content := strings.Repeat("a", 15) + ". " + strings.Repeat("b", 30)
	got := Summarize(content, 20, 8)
	assert.Equal(t, strings.Repeat("a", 15)+".", got)
}

func TestSummarizeTerminatorInOverrun(t *testing.T) {
	content := strings.Repeat("あ", 22) + "。" + strings.Repeat("い", 30)
	got := Summarize(content, 20, 5)
	assert.Equal(t, strings.Repeat("あ", 22)+"。", got)
}

func TestSummarizePrefersPrecedingTerminator(t *testing.T) {
	content := strings.Repeat("a", 17) + "." + strings.Repeat("b", 4) + "." + strings.Repeat("c", 30)
	got := Summarize(content, 20, 5)
	assert.Equal(t, strings.Repeat("a", 17)+".", got)
}

func TestSummarizeHardCut(t *testing.T) {
	content := strings.Repeat("x", 50) + ". tail"
	got := Summarize(content, 20, 5)
	assert.Equal(t, strings.Repeat("x", 20)+"…", got)
	assert.Equal(t, 21, len([]rune(got)))
}
