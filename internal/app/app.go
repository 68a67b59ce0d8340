// Package app assembles the upload and settlement pipeline from configuration.
// The server and the terminal sender share it.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/archive"
	"github.com/printrelay/backend/internal/config"
	"github.com/printrelay/backend/internal/convert"
	"github.com/printrelay/backend/internal/docstore"
	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/settlement"
	"github.com/printrelay/backend/internal/upload"
)

// openTimeout bounds connecting to the document store and archive.
const openTimeout = 30 * time.Second

// Runtime is the wired pipeline.
type Runtime struct {
	Store docstore.Gateway
	// StoreErr is why the configured document store could not be opened.
	// Store is then an in-memory placeholder and jobs must not be started.
	StoreErr  error
	Archive   archive.Sink
	Converter *convert.Chain
	Jobs      *upload.Manager
}

// Open connects the configured backends. A document store failure is kept
// in StoreErr rather than returned so the server can still report it.
func Open(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, m *metrics.Metrics) *Runtime {
	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	rt := &Runtime{}

	store, err := docstore.Open(ctx, cfg.DocStoreOptions())
	if err != nil {
		log.Error("document store unavailable",
			zap.String("backend", cfg.DocStore.Backend),
			zap.Error(err))
		rt.StoreErr = err
		store = docstore.NewMemoryStore()
	} else {
		log.Info("document store ready", zap.String("backend", cfg.DocStore.Backend))
	}
	rt.Store = store

	sink, err := archive.Open(ctx, cfg.ArchiveOptions())
	if err != nil {
		log.Warn("archive disabled", zap.String("kind", cfg.Archive.Kind), zap.Error(err))
		sink = archive.NopSink{}
	}
	rt.Archive = sink

	rt.Converter = convert.DefaultChain(convert.ChainOptions{
		OfficeBinary: cfg.Convert.OfficeBinary,
		PaperSize:    cfg.Convert.PaperSize,
	}, log.Named("convert"), m)

	rt.Jobs = upload.NewManager(upload.Deps{
		Uploader:      upload.NewOrchestrator(store, cfg.UploadOptions(), log.Named("upload"), m),
		Poller:        settlement.NewPoller(store, cfg.SettlementOptions(), log.Named("settlement"), m),
		Estimator:     settlement.NewEstimator(cfg.Pricing, cfg.Payee.ID, cfg.Payee.Name),
		Converter:     rt.Converter,
		Archive:       sink,
		ArchivePrefix: cfg.Archive.Prefix,
		Log:           log.Named("jobs"),
		Metrics:       m,
	})

	return rt
}

// Close releases the document store and archive clients.
func (rt *Runtime) Close() error {
	archiveErr := rt.Archive.Close()
	if err := rt.Store.Close(); err != nil {
		return err
	}
	return archiveErr
}
