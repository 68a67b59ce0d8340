// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/session"
	"github.com/printrelay/backend/internal/storage"
	"github.com/printrelay/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr *session.Manager
	JobMgr     *upload.Manager
	// Converter is wrapped in each session's conversion cache.
	Converter upload.Converter
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Version   string
	// Backend names the document store for the health check.
	Backend string
	// StoreErr is set when the document store could not be opened at startup.
	// Job submission then fails with 503 instead of starting.
	StoreErr error
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	File      FileHandler
	Job       JobHandler
	JobStream JobStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Backend, deps.StoreErr),
		Session:   NewSessionHandler(deps.SessionMgr),
		File:      NewFileHandler(deps.Store, deps.SessionMgr, deps.Log),
		Job:       NewJobHandler(deps),
		JobStream: NewJobStreamHandler(deps.JobMgr, deps.Log),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, m *metrics.Metrics) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	// Sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Session.HandleCreateSession)
	sessionGroup.GET("/:sessionId", handlers.Session.HandleGetSession)
	sessionGroup.PUT("/:sessionId/sender", handlers.Session.HandleUpdateSender)
	sessionGroup.POST("/:sessionId/keepalive", handlers.Session.HandleSessionKeepAlive)

	// Staged files
	sessionGroup.POST("/:sessionId/files", handlers.File.HandleUploadFile)
	sessionGroup.POST("/:sessionId/files/chunk", handlers.File.HandleUploadChunk)
	sessionGroup.POST("/:sessionId/files/complete", handlers.File.HandleCompleteUpload)
	sessionGroup.GET("/:sessionId/files", handlers.File.HandleListFiles)
	sessionGroup.GET("/:sessionId/files/:fileId", handlers.File.HandleGetFile)
	sessionGroup.DELETE("/:sessionId/files/:fileId", handlers.File.HandleDeleteFile)

	// Jobs
	sessionGroup.POST("/:sessionId/jobs", handlers.Job.HandleStartJob)
	jobGroup := apiGroup.Group("/jobs")
	jobGroup.GET("/:jobId", handlers.Job.HandleGetJob)
	jobGroup.DELETE("/:jobId", handlers.Job.HandleCancelJob)
	jobGroup.GET("/:jobId/payment", handlers.Job.HandleGetPayment)
	jobGroup.GET("/:jobId/payment/qr", handlers.Job.HandleGetPaymentQR)

	// WebSocket endpoint
	apiGroup.GET("/ws/jobs/:jobId", handlers.JobStream.HandleJobStream)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, log *zap.Logger, requestLogging bool, bodyLimit string) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !requestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/metrics" || strings.HasPrefix(path, "/api/ws/")
		},
		LogURI:      true,
		LogMethod:   true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}
}

// SetupCORS allows the configured origins.
func SetupCORS(e *echo.Echo, allowOrigins string) {
	origins := strings.Split(allowOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
}
