package storage

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/stub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrationPair(t *testing.T, dir string) {
	t.Helper()
	up := filepath.Join(dir, "000001_init.up.sql")
	down := filepath.Join(dir, "000001_init.down.sql")
	require.NoError(t, os.WriteFile(up, []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(down, []byte("SELECT 1;"), 0o644))
}

func TestMigrationVersion_FreshDatabase(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir)

	version, dirty, err := MigrationVersion("stub://", dir)
	require.NoError(t, err, "a database with no applied migrations is not an error")
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir)

	require.NoError(t, RunMigrations("stub://", dir))
}
