package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/archive"
	"github.com/printrelay/backend/internal/config"
	"github.com/printrelay/backend/internal/docstore"
)

func TestOpen_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DocStore.Backend = docstore.BackendMemory

	rt := Open(context.Background(), cfg, zap.NewNop(), nil)
	defer rt.Close()

	assert.NoError(t, rt.StoreErr)
	assert.IsType(t, &docstore.MemoryStore{}, rt.Store)
	assert.IsType(t, archive.NopSink{}, rt.Archive)
	assert.NotNil(t, rt.Jobs)
	assert.NotNil(t, rt.Converter)
}

func TestOpen_StoreFailureIsReported(t *testing.T) {
	t.Setenv("FIRESTORE_EMULATOR_HOST", "")
	cfg := config.DefaultConfig()
	cfg.DocStore.Backend = docstore.BackendFirestore
	cfg.DocStore.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	cfg.DocStore.CredentialsJSON = ""

	rt := Open(context.Background(), cfg, zap.NewNop(), nil)
	defer rt.Close()

	require.Error(t, rt.StoreErr)
	// A placeholder keeps the server up.
	assert.IsType(t, &docstore.MemoryStore{}, rt.Store)
}

func TestOpen_UnknownArchiveFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DocStore.Backend = docstore.BackendMemory
	cfg.Archive.Kind = "tape"

	rt := Open(context.Background(), cfg, zap.NewNop(), nil)
	defer rt.Close()

	assert.IsType(t, archive.NopSink{}, rt.Archive)
}
