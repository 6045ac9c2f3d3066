package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRegistry stores the catalog in a local SQLite database.
type SQLiteRegistry struct {
	sqlRegistry
	path string
}

// OpenSQLite opens (creating if needed) the database at path, applies the
// schema and seeds it from the builtin catalog when it holds no lines.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite registry requires a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	r := &SQLiteRegistry{sqlRegistry: sqlRegistry{db: db, dialect: dialectSQLite}, path: path}
	if err := r.seedIfEmpty(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed registry: %w", err)
	}
	return r, nil
}

// Path returns the database file path.
func (r *SQLiteRegistry) Path() string {
	return r.path
}
