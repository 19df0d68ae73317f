// Package testinternals holds helpers shared by the repo integration tests.
package testinternals

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/icheme/portfolio/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DBParams points at the test database, overridable with POSTGRES_HOST, POSTGRES_PORT,
// POSTGRES_DB, POSTGRES_USER and POSTGRES_PASSWORD.
func DBParams() db.NewDBPoolParams {
	return db.NewDBPoolParams{
		DBHost:     envOr("POSTGRES_HOST", "localhost"),
		DBPort:     envOr("POSTGRES_PORT", "5432"),
		DBName:     envOr("POSTGRES_DB", "portfolio_test"),
		DBUser:     envOr("POSTGRES_USER", "postgres"),
		DBPassword: os.Getenv("POSTGRES_PASSWORD"),
	}
}

// NewTestDBPool migrates the test database and returns a pool closed on test cleanup.
// The given tables are truncated before the test runs.
func NewTestDBPool(t *testing.T, truncateTables ...string) *pgxpool.Pool {
	t.Helper()

	params := DBParams()
	t.Logf("using postgres: %s:%s/%s", params.DBHost, params.DBPort, params.DBName)

	_, err := db.Migrate(db.ConnString(params))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, params)
	require.NoError(t, err)
	t.Cleanup(dbPool.Close)

	for _, table := range truncateTables {
		_, err := dbPool.Exec(ctx, `TRUNCATE TABLE `+table+` RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
	}

	return dbPool
}
