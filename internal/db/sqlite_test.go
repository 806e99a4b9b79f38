package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	w := dsn("/tmp/meta.sqlite", true)
	assert.True(t, strings.HasPrefix(w, "/tmp/meta.sqlite?"))
	assert.Contains(t, w, "_journal_mode=WAL")
	assert.Contains(t, w, "_busy_timeout=5000")
	assert.Contains(t, w, "_txlock=immediate")

	r := dsn("/tmp/meta.sqlite", false)
	assert.Contains(t, r, "_foreign_keys=on")
	assert.NotContains(t, r, "_txlock")
}

func TestOpen(t *testing.T) {
	pools, err := Open(context.Background(), filepath.Join(t.TempDir(), "meta.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pools.Close() })

	assert.Equal(t, 1, pools.Write.Stats().MaxOpenConnections)
	assert.Equal(t, defaultReaders, pools.Read.Stats().MaxOpenConnections)

	var mode string
	require.NoError(t, pools.Write.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "", 0)
	require.Error(t, err)

	_, err = Open(context.Background(), "/nonexistent/dir/meta.sqlite", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open write pool")
}

func TestMigrate(t *testing.T) {
	pools := OpenTestSQLite(t)

	var n int
	require.NoError(t, pools.Read.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'reconciliation_tasks'`).Scan(&n))
	assert.Equal(t, 1, n)

	// Re-running is a no-op.
	version, err := Migrate(context.Background(), pools.Write)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}
