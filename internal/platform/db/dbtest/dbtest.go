// Package dbtest opens a migrated Postgres pool for tests that need the real
// schema. Tests using it are skipped when TEST_DATABASE_URL is unset.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"perfreview/internal/platform/config"
	"perfreview/internal/platform/db"
)

// URL returns TEST_DATABASE_URL or skips the test.
func URL(t *testing.T) string {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dbURL
}

// MigrationsDir is the repository's migrations directory, independent of the
// test's working directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

// Open connects to TEST_DATABASE_URL and applies migrations. The pool is
// closed when the test ends.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := db.Connect(ctx, config.Config{DatabaseURL: URL(t), DBMaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool, MigrationsDir()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// TenantID returns a fresh tenant so tests sharing a database stay isolated.
func TenantID() string {
	return "test-" + uuid.NewString()
}
