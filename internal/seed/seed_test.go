package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/models/memory"
)

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	n, err := ImportFile(ctx, store, filepath.Join("testdata", "sources.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	byName := make(map[string]int)
	for i, s := range sources {
		byName[s.Name] = i
	}

	city := sources[byName["City Desk"]]
	assert.True(t, city.Enabled)
	assert.True(t, city.AutoApprove)
	assert.Equal(t, "rss", city.Format)
	assert.Equal(t, 10*time.Minute, city.PollInterval)
	assert.Equal(t, 6, city.Tuning.MaxPerHour)
	assert.Equal(t, []string{"council", "mayor"}, city.Tuning.KeywordHints["local"])
	assert.Equal(t, 160, city.Tuning.SummaryLength)

	wire := sources[byName["Politics Wire"]]
	assert.Equal(t, 15*time.Minute, wire.PollInterval)
	assert.False(t, wire.AutoApprove)

	paused := sources[byName["Paused Blog"]]
	assert.False(t, paused.Enabled)
	assert.Equal(t, "auto", paused.Format)

	// Re-importing updates in place.
	_, err = ImportFile(ctx, store, filepath.Join("testdata", "sources.yaml"))
	require.NoError(t, err)
	sources, err = store.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 3)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`
sources:
  - name: ""
    endpoint: https://a.example.com
  - name: b
    endpoint: https://b.example.com
    format: csv
  - name: c
    endpoint: https://c.example.com
    poll_interval: soon
  - name: d
    endpoint: https://d.example.com
  - name: d2
    endpoint: https://d.example.com
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "name is required")
	assert.ErrorContains(t, err, `unknown format "csv"`)
	assert.ErrorContains(t, err, `invalid poll_interval "soon"`)
	assert.ErrorContains(t, err, "duplicate endpoint")
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("sources: [this is: not valid"))
	assert.Error(t, err)
}
