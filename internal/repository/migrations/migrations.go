// Package migrations embeds the slot schema for each supported SQL dialect
// and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite3/*.sql
var embedded embed.FS

func dialectFor(driver string) (goose.Dialect, string, error) {
	switch driver {
	case "postgres":
		return goose.DialectPostgres, "postgres", nil
	case "sqlite3":
		return goose.DialectSQLite3, "sqlite3", nil
	default:
		return "", "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}

func provider(db *sql.DB, driver string) (*goose.Provider, error) {
	dialect, dir, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Sub(embedded, dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return p, nil
}

// Up applies all pending migrations and returns how many ran.
func Up(ctx context.Context, db *sql.DB, driver string) (int, error) {
	p, err := provider(db, driver)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	p, err := provider(db, driver)
	if err != nil {
		return 0, err
	}
	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
