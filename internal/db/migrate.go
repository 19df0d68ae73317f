package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrationSource() (migrate.MigrationSource, error) {
	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return &migrate.HttpFileSystemMigrationSource{
		FileSystem: http.FS(migrationsDir),
	}, nil
}

// Migrate applies all pending up migrations and returns how many were applied.
func Migrate(connString string) (int, error) {
	source, err := migrationSource()
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}

	sqlDB, err := sql.Open("postgres", connString)
	if err != nil {
		return 0, fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			log.Warnf("close migrations db: %s", err)
		}
	}()

	log.Trace("migrating database ...")
	n, err := migrate.Exec(sqlDB, "postgres", source, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	log.Debugf("applied %d migrations", n)

	return n, nil
}
