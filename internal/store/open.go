package store

import (
	"context"
	"fmt"
)

// Options selects and configures a ledger backend.
type Options struct {
	Backend     string
	SQLitePath  string
	PostgresURL string
}

// Open returns the ledger store for the configured backend.
func Open(ctx context.Context, opts Options) (LedgerStore, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires a connection URL")
		}
		return NewPostgresStore(ctx, opts.PostgresURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
