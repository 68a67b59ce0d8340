// gateway.go - Instrumented document store for uploader and poller tests
package testutil

import (
	"context"
	"sync"

	"github.com/printrelay/backend/internal/docstore"
)

// Gateway operations recorded by RecordingGateway.
const (
	OpPut      = "put"
	OpGet      = "get"
	OpBatchPut = "batch_put"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op         string
	Collection string
	IDs        []string
	Err        error
}

// RecordingGateway wraps a MemoryStore, records every call in order and can
// be told to fail the next calls of an operation.
type RecordingGateway struct {
	*docstore.MemoryStore

	mu       sync.Mutex
	calls    []Call
	failures map[string][]error

	// OnCall runs after a call is recorded, outside the lock.
	OnCall func(Call)
}

// NewRecordingGateway returns an empty instrumented store.
func NewRecordingGateway() *RecordingGateway {
	return &RecordingGateway{
		MemoryStore: docstore.NewMemoryStore(),
		failures:    make(map[string][]error),
	}
}

// FailNext queues errors returned, in order, by the next calls of op.
func (g *RecordingGateway) FailNext(op string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], errs...)
}

func (g *RecordingGateway) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	err := g.takeFailure(OpPut)
	if err == nil {
		err = g.MemoryStore.Put(ctx, collection, id, fields)
	}
	g.record(Call{Op: OpPut, Collection: collection, IDs: []string{id}, Err: err})
	return err
}

func (g *RecordingGateway) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var fields map[string]any
	err := g.takeFailure(OpGet)
	if err == nil {
		fields, err = g.MemoryStore.Get(ctx, collection, id)
	}
	g.record(Call{Op: OpGet, Collection: collection, IDs: []string{id}, Err: err})
	return fields, err
}

func (g *RecordingGateway) BatchPut(ctx context.Context, collection string, docs []docstore.Document) error {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	err := g.takeFailure(OpBatchPut)
	if err == nil {
		err = g.MemoryStore.BatchPut(ctx, collection, docs)
	}
	g.record(Call{Op: OpBatchPut, Collection: collection, IDs: ids, Err: err})
	return err
}

// Calls returns a copy of every recorded call.
func (g *RecordingGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount counts recorded calls of op, failed ones included.
func (g *RecordingGateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// WrittenIDs lists document ids in the order they were successfully written.
func (g *RecordingGateway) WrittenIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, c := range g.calls {
		if c.Err != nil || c.Op == OpGet {
			continue
		}
		ids = append(ids, c.IDs...)
	}
	return ids
}

func (g *RecordingGateway) takeFailure(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	q := g.failures[op]
	if len(q) == 0 {
		return nil
	}
	g.failures[op] = q[1:]
	return q[0]
}

func (g *RecordingGateway) record(c Call) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	hook := g.OnCall
	g.mu.Unlock()
	if hook != nil {
		hook(c)
	}
}

var _ docstore.Gateway = (*RecordingGateway)(nil)
