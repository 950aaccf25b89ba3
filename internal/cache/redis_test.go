package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/internal/models"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "newsdesk:trending:live", key(models.WindowLive))
	assert.Equal(t, "newsdesk:trending:weekly", key(models.WindowWeekly))
}

func TestTrendingRoundTrip(t *testing.T) {
	addr := os.Getenv("NEWSDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NEWSDESK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	c := New(rdb, time.Minute)
	require.NoError(t, c.Invalidate(ctx, models.WindowLive))

	_, ok, err := c.Get(ctx, models.WindowLive, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	rows := []models.SnapshotRow{{PostID: uuid.New(), Rank: 1, Score: 4.9, Window: models.WindowLive}}
	require.NoError(t, c.Set(ctx, models.WindowLive, 10, rows))

	got, ok, err := c.Get(ctx, models.WindowLive, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, rows[0].PostID, got[0].PostID)

	_, ok, err = c.Get(ctx, models.WindowLive, 5)
	require.NoError(t, err)
	assert.False(t, ok, "limits are cached separately")

	require.NoError(t, c.Invalidate(ctx, models.WindowLive))
	_, ok, err = c.Get(ctx, models.WindowLive, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}
