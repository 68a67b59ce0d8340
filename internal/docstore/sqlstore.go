package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/printrelay/backend/internal/faults"
)

const upsertDocumentSQL = `INSERT INTO documents (collection, id, fields, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`

const selectDocumentSQL = `SELECT fields FROM documents WHERE collection = $1 AND id = $2`

// fieldCodec converts document fields to and from the stored column value.
type fieldCodec interface {
	encode(fields map[string]any) (any, error)
	decode(raw []byte) (map[string]any, error)
}

// sqlStore implements Gateway on a documents(collection, id, fields,
// updated_at) table. DuckDB and Postgres share the statements.
type sqlStore struct {
	db    *sql.DB
	codec fieldCodec
	now   func() time.Time
}

func (s *sqlStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := checkKey("put", collection, id); err != nil {
		return err
	}
	val, err := s.codec.encode(fields)
	if err != nil {
		return faults.Wrap(faults.Permanent, "put", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertDocumentSQL, collection, id, val, s.now().UTC()); err != nil {
		return classifySQL("put", err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkKey("get", collection, id); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, selectDocumentSQL, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", collection, id)
	}
	if err != nil {
		return nil, classifySQL("get", err)
	}
	fields, err := s.codec.decode(raw)
	if err != nil {
		return nil, faults.Wrap(faults.Permanent, "get", fmt.Errorf("decode %s/%s: %w", collection, id, err))
	}
	return fields, nil
}

func (s *sqlStore) BatchPut(ctx context.Context, collection string, docs []Document) (err error) {
	if err := checkBatch("batch_put", docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQL("batch_put", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertDocumentSQL)
	if err != nil {
		return classifySQL("batch_put", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, d := range docs {
		val, encErr := s.codec.encode(d.Fields)
		if encErr != nil {
			return faults.Wrap(faults.Permanent, "batch_put", encErr)
		}
		if _, err = stmt.ExecContext(ctx, collection, d.ID, val, now); err != nil {
			return classifySQL("batch_put", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return classifySQL("batch_put", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func classifySQL(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrTxDone) {
		return faults.Wrap(faults.Permanent, op, err)
	}
	return faults.Wrap(faults.Transient, op, err)
}
