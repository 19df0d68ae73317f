package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	assert.Equal(t,
		"postgres://postgres@localhost:5432/portfolio?sslmode=disable",
		ConnString(NewDBPoolParams{DBHost: "localhost", DBPort: "5432", DBName: "portfolio"}),
	)
	assert.Equal(t,
		"postgres://app:p%40ss@db:6543/portfolio?sslmode=disable",
		ConnString(NewDBPoolParams{DBHost: "db", DBPort: "6543", DBName: "portfolio", DBUser: "app", DBPassword: "p@ss"}),
	)
}

func TestMigrationSource(t *testing.T) {
	source, err := migrationSource()
	require.NoError(t, err)
	migrations, err := source.FindMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_admin.sql", migrations[0].Id)
	assert.NotEmpty(t, migrations[0].Up)
	assert.NotEmpty(t, migrations[0].Down)

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
