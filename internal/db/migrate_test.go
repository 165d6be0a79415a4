package db

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n))
	return n > 0
}

func TestLatestMigrationVersion(t *testing.T) {
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	latest, err := GetLatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), latest)
}

func TestMigrateUpAndDown(t *testing.T) {
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	db, err := OpenDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	assert.True(t, tableExists(t, db, "road_events"))

	// no-op once at latest
	require.NoError(t, db.MigrateUp(migrations))

	status, err := db.GetMigrationStatus(migrations)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{CurrentVersion: 1, LatestVersion: 1, SchemaMigrationsExists: true}, status)

	require.NoError(t, db.MigrateDown(migrations))
	assert.False(t, tableExists(t, db, "road_events"))
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")

	t.Run("help", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand([]string{"help"}, dbPath, MigrateIO{Out: &out}))
		assert.Contains(t, out.String(), "Database Migration Commands")
	})

	t.Run("missing action", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, RunMigrateCommand(nil, dbPath, MigrateIO{Out: &out}))
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("unknown action", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, RunMigrateCommand([]string{"sideways"}, dbPath, MigrateIO{Out: &out}))
		assert.Contains(t, out.String(), "Unknown migrate action: sideways")
	})

	t.Run("up then status", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand([]string{"up"}, dbPath, MigrateIO{Out: &out}))
		require.NoError(t, RunMigrateCommand([]string{"status"}, dbPath, MigrateIO{Out: &out}))
		assert.Contains(t, out.String(), "Current version: 1")
		assert.Contains(t, out.String(), "Database is up to date.")
	})

	t.Run("bad version", func(t *testing.T) {
		var out bytes.Buffer
		assert.Error(t, RunMigrateCommand([]string{"version", "latest"}, dbPath, MigrateIO{Out: &out}))
		assert.Error(t, RunMigrateCommand([]string{"version"}, dbPath, MigrateIO{Out: &out}))
	})

	t.Run("force declined", func(t *testing.T) {
		var out bytes.Buffer
		err := RunMigrateCommand([]string{"force", "1"}, dbPath, MigrateIO{In: strings.NewReader("n\n"), Out: &out})
		assert.True(t, errors.Is(err, ErrAborted), "got %v", err)
		assert.Contains(t, out.String(), "Continue? [y/N]")
	})

	t.Run("force confirmed", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand([]string{"force", "1", "-y"}, dbPath, MigrateIO{Out: &out}))
	})

	t.Run("down", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand([]string{"down"}, dbPath, MigrateIO{Out: &out}))
		require.NoError(t, RunMigrateCommand([]string{"status"}, dbPath, MigrateIO{Out: &out}))
		assert.Contains(t, out.String(), "1 version(s) behind")
	})
}
