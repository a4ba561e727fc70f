// Package db embeds the PostgreSQL schema migrations for the pgvector
// backend and applies them with golang-migrate.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"embed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigratePostgres applies all pending migrations to the database at
// databaseURL (postgres:// or postgresql:// form). Safe to call
// repeatedly; an up-to-date schema is not an error.
func MigratePostgres(databaseURL string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, pgxURL(databaseURL))
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// pgxURL rewrites a postgres URL to the scheme the migrate pgx/v5 driver
// registers under.
func pgxURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}
