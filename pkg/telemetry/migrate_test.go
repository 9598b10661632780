package telemetry

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":   {Data: []byte("SELECT 10")},
		"migrations/001_first.sql":   {Data: []byte("SELECT 1")},
		"migrations/002_second.sql":  {Data: []byte("SELECT 2")},
		"migrations/notes.md":        {Data: []byte("ignored")},
		"migrations/sub/003_sub.sql": {Data: []byte("ignored")},
	}

	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_second.sql", "010_later.sql"}, names)
}

func TestPendingMigrations(t *testing.T) {
	names := []string{"001_first.sql", "002_second.sql", "003_third.sql"}

	pending := pendingMigrations(names, map[string]bool{"001_first.sql": true})
	assert.Equal(t, []string{"002_second.sql", "003_third.sql"}, pending)

	assert.Empty(t, pendingMigrations(names, map[string]bool{
		"001_first.sql": true, "002_second.sql": true, "003_third.sql": true,
	}))
	assert.Equal(t, names, pendingMigrations(names, nil))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
		CREATE TABLE a (x String) ENGINE = MergeTree ORDER BY x;

		CREATE TABLE b (y String) ENGINE = MergeTree ORDER BY y;
	`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := migrationNames(migrationFS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_credit_events.sql", names[0])

	raw, err := migrationFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "credit_events")
	assert.Contains(t, string(raw), "ReplacingMergeTree")
}
