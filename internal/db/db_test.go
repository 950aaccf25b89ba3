package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saul-Punybz/newsdesk/migrations"
)

func TestPendingFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql":  {Data: []byte("SELECT 1;")},
		"001_init.sql":  {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"010_later.sql": {Data: []byte("SELECT 1;")},
	}
	files, err := pendingFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_more.sql", "010_later.sql"}, files)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := pendingFiles(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_snapshot_runs.sql"}, files)
}

func TestLockKeyStable(t *testing.T) {
	assert.Equal(t, lockKey("ingest"), lockKey("ingest"))
	assert.NotEqual(t, lockKey("ingest"), lockKey("rank"))
}
