package docstore

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendDuckDB    = "duckdb"
	BackendPostgres  = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Firestore   FirestoreOptions
	DuckDB      DuckDBOptions
	PostgresDSN string
}

// Open creates the configured gateway.
func Open(ctx context.Context, opts Options) (Gateway, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFirestore:
		return NewFirestoreStore(ctx, opts.Firestore)
	case BackendDuckDB:
		return NewDuckDBStore(opts.DuckDB)
	case BackendPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return OpenPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown document store backend %q", opts.Backend)
	}
}
