package persistence

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/dfryer1193/cropfeed/shared/db/postgres"
	"github.com/dfryer1193/cropfeed/shared/db/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB opens a migrated in-memory SQLite database
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: ":memory:"})
	if err := database.Connect(); err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database.DB()
}

// setupTestPool connects to TEST_DATABASE_URL and empties kv_entries, or
// returns nil when the variable is unset.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return nil
	}

	pool, err := postgres.NewPool(context.Background(), &postgres.PostgresConfig{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("failed to connect to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(), "DELETE FROM kv_entries"); err != nil {
		t.Fatalf("failed to reset kv_entries: %v", err)
	}
	return pool
}
