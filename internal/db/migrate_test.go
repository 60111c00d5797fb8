package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigratorUp(t *testing.T) {
	database := newTestDB(t)
	migrator := NewMigrator(database.DB)

	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())

	version, err := migrator.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)

	// Every table from the schema exists.
	for _, table := range []string{"config", "categories", "menu_items", "orders", "order_items", "sync_queue", "print_jobs"} {
		var name string
		err := database.DB.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s missing after migration", table)
	}
}

func TestMigratorUpIdempotent(t *testing.T) {
	database := newTestDB(t)
	migrator := NewMigrator(database.DB)

	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Up())

	applied, err := migrator.GetAppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
	for _, mig := range applied {
		assert.Len(t, mig.Checksum, 64)
		assert.False(t, mig.AppliedAt.IsZero())
	}
}

func TestMigratorChecksumMismatch(t *testing.T) {
	database := newTestDB(t)
	migrator := NewMigrator(database.DB)

	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())

	// Tamper with the recorded checksum to simulate a changed definition.
	_, err := database.DB.Exec("UPDATE schema_migrations SET checksum = ? WHERE version = 1",
		strings.Repeat("0", 64))
	require.NoError(t, err)

	err = migrator.Up()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestMigratorCurrentVersionEmpty(t *testing.T) {
	database := newTestDB(t)
	migrator := NewMigrator(database.DB)
	require.NoError(t, migrator.Initialize())

	version, err := migrator.CurrentVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
}
