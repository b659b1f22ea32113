package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// NewSQLiteDatabase opens a SQLite database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteDatabase(ctx context.Context, path string) (*SQLDatabase, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection also keeps an
	// in-memory database alive for the pool's lifetime.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[SQLITE] Opened %s", path)
	return newSQLDatabase(db, SQLiteDialect{}), nil
}
