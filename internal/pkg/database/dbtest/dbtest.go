// Package dbtest connects repository tests to the Postgres database named
// by TEST_DATABASE_URL. Tests are skipped when it is unset or unreachable.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/migrations"
)

const envKey = "TEST_DATABASE_URL"

// Open returns a migrated pool that is closed when the test ends.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(envKey)
	if dsn == "" {
		t.Skipf("%s not set", envKey)
	}
	db, err := database.NewPostgres(dsn, 20)
	if err != nil {
		t.Skipf("db not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db, migrations.FS))
	return db
}

// Cleanup runs query with args once the test finishes.
func Cleanup(t *testing.T, db *sqlx.DB, query string, args ...interface{}) {
	t.Helper()
	t.Cleanup(func() { _, _ = db.Exec(query, args...) })
}
