package docstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printrelay/backend/internal/faults"
)

func TestDuckDBStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	g, err := NewDuckDBStore(DuckDBOptions{Path: filepath.Join(t.TempDir(), "docs.duckdb")})
	require.NoError(t, err)
	defer g.Close()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, g.Put(ctx, "jobs", "f_meta", map[string]any{
		"fragment_count": 0,
		"created_at":     created,
		"settings":       map[string]any{"copies": 2, "duplex": true},
	}))
	require.NoError(t, g.Put(ctx, "jobs", "f_meta", map[string]any{
		"fragment_count": 5,
		"created_at":     created,
	}))

	got, err := g.Get(ctx, "jobs", "f_meta")
	require.NoError(t, err)
	assert.EqualValues(t, 5, got["fragment_count"])
	assert.NotContains(t, got, "settings", "put replaces the whole document")
	ts, ok := got["created_at"].(time.Time)
	require.True(t, ok, "got %T", got["created_at"])
	assert.True(t, created.Equal(ts))

	_, err = g.Get(ctx, "jobs", "other_meta")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestDuckDBStore_BatchPut(t *testing.T) {
	ctx := context.Background()
	g, err := NewDuckDBStore(DuckDBOptions{})
	require.NoError(t, err)
	defer g.Close()

	docs := make([]Document, 25)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprintf("f_%d", i), Fields: map[string]any{"chunk_index": i, "data": "QUJD"}}
	}
	require.NoError(t, g.BatchPut(ctx, "jobs", docs))

	got, err := g.Get(ctx, "jobs", "f_24")
	require.NoError(t, err)
	assert.EqualValues(t, 24, got["chunk_index"])
	assert.Equal(t, "QUJD", got["data"])
}
