package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/vmihailenco/msgpack/v5"
)

// DuckDBOptions configures the embedded store.
type DuckDBOptions struct {
	// Path of the database file. Empty opens an in-memory database.
	Path        string
	MemoryLimit string
	Threads     int
}

const createDocumentsDuckDB = `CREATE TABLE IF NOT EXISTS documents (
	collection VARCHAR NOT NULL,
	id         VARCHAR NOT NULL,
	fields     BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
)`

// NewDuckDBStore opens (or creates) an embedded DuckDB document store.
// Fields are stored as msgpack so that integers and timestamps keep their type.
func NewDuckDBStore(opts DuckDBOptions) (Gateway, error) {
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating duckdb directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(opts.Path, func(execer driver.ExecerContext) error {
		var pragmas []string
		if opts.MemoryLimit != "" {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
		}
		if opts.Threads > 0 {
			pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(createDocumentsDuckDB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	return &sqlStore{db: db, codec: msgpackCodec{}, now: time.Now}, nil
}

type msgpackCodec struct{}

func (msgpackCodec) encode(fields map[string]any) (any, error) {
	return msgpack.Marshal(fields)
}

func (msgpackCodec) decode(raw []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
