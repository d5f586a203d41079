// Package testutil holds shared test fixtures: a migrated Postgres database
// for integration tests and an in-memory store for everything else.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/johndosdos/tradechat/sql/schema"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "../../")
}

// DbInit connects to TEST_DB_URL and applies the migrations from scratch.
// The test is skipped when TEST_DB_URL is unset. Packages share the
// database, so run integration tests with -p 1.
func DbInit(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load(filepath.Join(ProjectRoot(), ".env"))

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	dbForGoose := stdlib.OpenDBFromPool(dbPool)
	if err := schema.Reset(ctx, dbForGoose); err != nil {
		t.Fatalf("schema.Reset() error = %+v", err)
	}
	if err := schema.Up(ctx, dbForGoose); err != nil {
		t.Fatalf("schema.Up() error = %+v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := schema.Reset(ctx, dbForGoose); err != nil {
			t.Logf("schema.Reset() error = %+v", err)
		}
		_ = dbForGoose.Close()
		dbPool.Close()
	})

	return dbPool
}
