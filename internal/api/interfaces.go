// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles sender sessions
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleUpdateSender(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// FileHandler handles staged file operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// JobHandler handles print job operations
type JobHandler interface {
	HandleStartJob(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleCancelJob(c echo.Context) error
	HandleGetPayment(c echo.Context) error
	HandleGetPaymentQR(c echo.Context) error
}

// JobStreamHandler pushes job events over a websocket
type JobStreamHandler interface {
	HandleJobStream(c echo.Context) error
}
