package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	postgresDriver = "pgx"
	defaultDSN     = "postgres://localhost/celldyn?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresRegistry stores the catalog in Postgres so several service
// instances can share one set of cell lines.
type PostgresRegistry struct {
	sqlRegistry
}

// OpenPostgres connects with dsn (falls back to a local default), applies the
// schema and seeds the builtin catalog into an empty database.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	r := &PostgresRegistry{sqlRegistry{db: db, dialect: dialectPostgres}}
	if err := r.seedIfEmpty(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed postgres registry: %w", err)
	}
	return r, nil
}
