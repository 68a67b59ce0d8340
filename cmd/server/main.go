package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/api"
	"github.com/printrelay/backend/internal/app"
	"github.com/printrelay/backend/internal/config"
	"github.com/printrelay/backend/internal/logging"
	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/session"
	"github.com/printrelay/backend/internal/storage"
	"github.com/printrelay/backend/internal/upload"
	"github.com/printrelay/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := os.Getenv("PRINTRELAY_CONFIG")
	if configPath == "" {
		// Next to the executable by default
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "printrelay.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	api.ShowErrorDetails = cfg.Logging.Development

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	rt := app.Open(ctx, cfg, log, m)
	defer rt.Close()

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	sessionMgr := session.NewManager(log.Named("sessions"))

	go runCleanup(ctx, cfg, log, sessionMgr, fileStore, rt.Jobs)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, log, cfg.Logging.EnableRequestLogging, cfg.Server.BodyLimit)
	if cfg.Server.EnableCORS {
		api.SetupCORS(e, cfg.Server.AllowOrigins)
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Store:      fileStore,
		SessionMgr: sessionMgr,
		JobMgr:     rt.Jobs,
		Converter:  rt.Converter,
		Metrics:    m,
		Log:        log,
		Version:    Version,
		Backend:    cfg.DocStore.Backend,
		StoreErr:   rt.StoreErr,
	})
	api.RegisterRoutes(e, handlers, m)

	embedded := web.HasEmbeddedFiles()
	if embedded {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn("failed to register static routes", zap.Error(err))
			embedded = false
		}
	}

	s := &http.Server{
		Addr:              cfg.GetServerAddr(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Print Relay Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Doc Store:  %-45s║\n", storeLabel(cfg.DocStore.Backend, rt.StoreErr))
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	if embedded {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

// runCleanup drops idle sessions with their staged files and forgets
// finished jobs.
func runCleanup(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, sessionMgr *session.Manager, fileStore storage.Store, jobs *upload.Manager) {
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range sessionMgr.CleanupOldSessions(cfg.SessionTimeout()) {
				files, err := fileStore.List(sess.ID, 0)
				if err != nil {
					log.Warn("list staged files", zap.String("session_id", sess.ID), zap.Error(err))
					continue
				}
				for _, f := range files {
					if err := fileStore.Delete(f.ID); err != nil {
						log.Warn("delete staged file", zap.String("file_id", f.ID), zap.Error(err))
					}
				}
			}
			if n := jobs.CleanupOldJobs(cfg.JobRetention()); n > 0 {
				log.Debug("removed finished jobs", zap.Int("count", n))
			}
		}
	}
}

func storeLabel(backend string, err error) string {
	if err != nil {
		return backend + " (unavailable)"
	}
	return backend
}
