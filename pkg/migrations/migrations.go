package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedMigrations embed.FS

// goose keeps dialect and FS in package state
var mu sync.Mutex

// Up applies the embedded migrations for driver ("postgres" or "sqlite").
func Up(db *sql.DB, driver string) error {
	dialect, dir, err := resolve(driver)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}

func resolve(driver string) (dialect, dir string, err error) {
	switch driver {
	case "postgres":
		return "postgres", "postgres", nil
	case "sqlite":
		return "sqlite3", "sqlite", nil
	}
	return "", "", fmt.Errorf("no migrations for driver %q", driver)
}
