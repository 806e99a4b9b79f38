package db

import (
	"context"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated store under t.TempDir and closes it on cleanup.
func OpenTestSQLite(t *testing.T) *Pools {
	t.Helper()

	pools, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), 2)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = pools.Close() })

	if _, err := Migrate(context.Background(), pools.Write); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pools
}
