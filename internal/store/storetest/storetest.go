// internal/store/storetest/storetest.go
package storetest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"librocirc/internal/store"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Setup connects to the test Postgres, applies the schema and truncates
// all tables. Tests are skipped when no database is reachable, so the
// suite stays runnable on machines without one.
func Setup(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			env("PGHOST", "localhost"),
			env("PGPORT", "5432"),
			env("PGUSER", "librocirc"),
			env("PGPASSWORD", "librocirc"),
			env("PGDATABASE", "librocirc_test"),
		)
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate test schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		TRUNCATE TABLE events, fines, reservations, loans, holidays, policy_settings, credentials, books, members CASCADE
	`); err != nil {
		t.Fatalf("truncate test tables: %v", err)
	}
	return db
}
