package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteScheme = "sqlite://"

// Connect opens the homework store. DSNs starting with sqlite:// or file: use the
// embedded SQLite driver; anything else is handed to PostgreSQL.
func Connect(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn must not be empty")
	}

	dialector, driver := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(dsn, sqliteScheme):
		return sqlite.Open(strings.TrimPrefix(dsn, sqliteScheme)), "sqlite"
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), "sqlite"
	default:
		return postgres.Open(dsn), "postgres"
	}
}
