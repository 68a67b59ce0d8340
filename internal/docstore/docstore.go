// Package docstore is the gateway to the schemaless document collection that
// holds fragments and manifests.
package docstore

import (
	"context"
	"fmt"

	"github.com/printrelay/backend/internal/faults"
)

// MaxBatch is the largest number of documents accepted by one BatchPut.
const MaxBatch = 300

// Document is one (id, fields) pair of a batch write.
type Document struct {
	ID     string
	Fields map[string]any
}

// Gateway is the document store capability used by the uploader and the
// settlement poller.
type Gateway interface {
	// Put replaces the whole document.
	Put(ctx context.Context, collection, id string, fields map[string]any) error

	// Get returns the document fields or an error matching faults.ErrNotFound.
	Get(ctx context.Context, collection, id string) (map[string]any, error)

	// BatchPut upserts up to MaxBatch documents. It is best-effort: on error
	// some documents may have been written.
	BatchPut(ctx context.Context, collection string, docs []Document) error

	Close() error
}

func checkBatch(op string, docs []Document) error {
	if len(docs) > MaxBatch {
		return faults.Permanentf(op, "batch of %d documents exceeds limit of %d", len(docs), MaxBatch)
	}
	for _, d := range docs {
		if d.ID == "" {
			return faults.Permanentf(op, "document id is empty")
		}
	}
	return nil
}

func checkKey(op, collection, id string) error {
	if collection == "" {
		return faults.Permanentf(op, "collection is empty")
	}
	if id == "" {
		return faults.Permanentf(op, "document id is empty")
	}
	return nil
}

func notFound(op, collection, id string) error {
	return faults.Wrap(faults.NotFound, op, fmt.Errorf("%s/%s: %w", collection, id, faults.ErrNotFound))
}
