package trending

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

func TestContribution(t *testing.T) {
	hl := 36 * time.Hour
	assert.InDelta(t, 5.0, Contribution(5, 0, hl), 1e-12)
	assert.InDelta(t, 2.5, Contribution(5, hl, hl), 1e-12)
	assert.InDelta(t, 5.0, Contribution(5, -time.Hour, hl), 1e-12, "future events clamp to age zero")
	assert.InDelta(t, 5*math.Exp2(-1.0/36.0), Contribution(5, time.Hour, hl), 1e-12)
}

func TestContributionMonotonic(t *testing.T) {
	hl := 36 * time.Hour
	prev := Contribution(1, 0, hl)
	for age := time.Hour; age <= 168*time.Hour; age += time.Hour {
		c := Contribution(1, age, hl)
		assert.Less(t, c, prev, "age %s", age)
		prev = c
	}
}

func TestScenarioEmpathyOutranksFreshView(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	p, q := uuid.New(), uuid.New()
	events := []models.EngagementEvent{
		{PostID: p, Kind: models.EventEmpathy, CreatedAt: now.Add(-time.Hour)},
		{PostID: q, Kind: models.EventView, CreatedAt: now},
	}

	rows := Rank(ScoreEvents(events, now, models.WindowLive, DefaultOptions()), 10)
	require.Len(t, rows, 2)
	assert.Equal(t, p, rows[0].PostID)
	assert.InDelta(t, 4.90, rows[0].Score, 0.01)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, q, rows[1].PostID)
	assert.InDelta(t, 1.0, rows[1].Score, 1e-12)
	assert.Equal(t, 2, rows[1].Rank)
}

func TestScoreEventsWindow(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	p := uuid.New()
	events := []models.EngagementEvent{
		{PostID: p, Kind: models.EventView, CreatedAt: now.Add(-2 * time.Hour)},
		{PostID: p, Kind: models.EventShare, CreatedAt: now.Add(-48 * time.Hour)},
		{PostID: p, Kind: models.EventKind("bogus"), CreatedAt: now},
	}

	live := ScoreEvents(events, now, models.WindowLive, DefaultOptions())
	require.Len(t, live, 1)
	assert.InDelta(t, Contribution(1, 2*time.Hour, 36*time.Hour), live[0].Score, 1e-12)
	assert.Equal(t, now.Add(-2*time.Hour), live[0].LastEventAt)

	weekly := ScoreEvents(events, now, models.WindowWeekly, DefaultOptions())
	require.Len(t, weekly, 1)
	want := Contribution(1, 2*time.Hour, 36*time.Hour) + Contribution(3, 48*time.Hour, 36*time.Hour)
	assert.InDelta(t, want, weekly[0].Score, 1e-12)
}

func TestRankTieBreaks(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	c := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	rows := Rank([]Score{
		{PostID: b, Score: 2, LastEventAt: now},
		{PostID: a, Score: 2, LastEventAt: now},
		{PostID: c, Score: 2, LastEventAt: now.Add(time.Minute)},
	}, 0)
	require.Len(t, rows, 3)
	assert.Equal(t, []uuid.UUID{c, a, b}, []uuid.UUID{rows[0].PostID, rows[1].PostID, rows[2].PostID})
}

func TestRankTopN(t *testing.T) {
	var scores []Score
	for i := range 10 {
		scores = append(scores, Score{PostID: uuid.New(), Score: float64(i)})
	}
	rows := Rank(scores, 3)
	require.Len(t, rows, 3)
	assert.InDelta(t, 9.0, rows[0].Score, 1e-12)
	assert.Equal(t, 3, rows[2].Rank)
}

func TestAnonymizeActor(t *testing.T) {
	assert.Empty(t, AnonymizeActor("salt", ""))
	a := AnonymizeActor("salt", "10.0.0.1")
	assert.Len(t, a, 32)
	assert.Equal(t, a, AnonymizeActor("salt", "10.0.0.1"))
	assert.NotEqual(t, a, AnonymizeActor("pepper", "10.0.0.1"))
}
