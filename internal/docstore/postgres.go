package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/printrelay/backend/internal/docstore/migrations"
)

// OpenPostgresStore connects with pgx, applies migrations and returns a
// gateway storing fields as jsonb.
func OpenPostgresStore(ctx context.Context, dsn string) (Gateway, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an already migrated database.
func NewPostgresStore(db *sql.DB) Gateway {
	return &sqlStore{db: db, codec: jsonCodec{}, now: time.Now}
}

// gooseUp is a seam for tests.
var gooseUp = goose.UpContext

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) encode(fields map[string]any) (any, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (jsonCodec) decode(raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
