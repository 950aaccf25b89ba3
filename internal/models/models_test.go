package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ItemStatus
		want     bool
	}{
		{ItemPending, ItemApproved, true},
		{ItemPending, ItemRejected, true},
		{ItemPending, ItemPending, false},
		{ItemApproved, ItemPending, false},
		{ItemApproved, ItemRejected, false},
		{ItemRejected, ItemApproved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseTuning(t *testing.T) {
	t.Run("empty uses defaults", func(t *testing.T) {
		tn, err := ParseTuning(nil)
		require.NoError(t, err)
		assert.Equal(t, 160, tn.SummaryLength)
		assert.Equal(t, 100, tn.MaxItems)
		assert.Zero(t, tn.MaxPerHour)
		assert.Zero(t, tn.EmitSpacing())
	})

	t.Run("overrides and unknown keys", func(t *testing.T) {
		tn, err := ParseTuning([]byte(`{"max_per_hour":4,"summary_length":80,"bogus":true,
			"keyword_hints":{"sports":["goal","match"]}}`))
		require.NoError(t, err)
		assert.Equal(t, 80, tn.SummaryLength)
		assert.Equal(t, 100, tn.MaxItems)
		assert.Equal(t, 15*time.Minute, tn.EmitSpacing())
		assert.Equal(t, []string{"goal", "match"}, tn.KeywordHints["sports"])
	})

	t.Run("malformed falls back to defaults", func(t *testing.T) {
		tn, err := ParseTuning([]byte(`{"max_per_hour":`))
		require.Error(t, err)
		assert.Equal(t, Tuning{}.WithDefaults(), tn)
	})

	t.Run("round trip through storage form", func(t *testing.T) {
		in := Tuning{MaxPerHour: 2, AllowHTTP: true}.WithDefaults()
		out, err := ParseTuning(in.Marshal())
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestFeedSourceDue(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	polled := now.Add(-10 * time.Minute)

	assert.True(t, FeedSource{Enabled: true}.Due(now), "never polled")
	assert.False(t, FeedSource{Enabled: false}.Due(now), "disabled")
	assert.True(t, FeedSource{Enabled: true, PollInterval: 10 * time.Minute, LastPolledAt: &polled}.Due(now), "exactly due")
	assert.False(t, FeedSource{Enabled: true, PollInterval: 15 * time.Minute, LastPolledAt: &polled}.Due(now), "not yet")
}

func TestWindows(t *testing.T) {
	w, ok := ParseWindow("")
	require.True(t, ok)
	assert.Equal(t, WindowLive, w)
	assert.Equal(t, 24*time.Hour, w.Lookback())

	w, ok = ParseWindow("weekly")
	require.True(t, ok)
	assert.Equal(t, 168*time.Hour, w.Lookback())

	_, ok = ParseWindow("monthly")
	assert.False(t, ok)
}
