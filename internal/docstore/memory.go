package docstore

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory gateway.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := checkKey("put", collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(collection, id, fields)
	return nil
}

func (s *MemoryStore) putLocked(collection, id string, fields map[string]any) {
	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.docs[collection] = coll
	}
	coll[id] = cloneFields(fields)
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkKey("get", collection, id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, notFound("get", collection, id)
	}
	return cloneFields(doc), nil
}

func (s *MemoryStore) BatchPut(ctx context.Context, collection string, docs []Document) error {
	if err := checkBatch("batch_put", docs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.putLocked(collection, d.ID, d.Fields)
	}
	return nil
}

// Merge sets the given top-level fields on an existing document, the way an
// external receiver attaches payinfo.
func (s *MemoryStore) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return notFound("merge", collection, id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Len returns the number of documents in collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

func (s *MemoryStore) Close() error { return nil }

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneFields(m)
			continue
		}
		out[k] = v
	}
	return out
}
