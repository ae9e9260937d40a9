// Package db owns the Postgres schema. Migrations are embedded so the
// migrate binary needs no deploy-time filesystem layout.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Open returns a database/sql handle for migration tooling. The services run
// on pgx pools; goose rides on database/sql, so migrations go through the pq
// driver instead.
func Open(dbURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}

// Up applies all pending migrations.
func Up(conn *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.Up(conn, migrationsDir)
}

// Down rolls back the most recent migration.
func Down(conn *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.Down(conn, migrationsDir)
}

// Status prints the applied state of every known migration.
func Status(conn *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.Status(conn, migrationsDir)
}

func setup() error {
	goose.SetBaseFS(migrations)
	return goose.SetDialect("postgres")
}
