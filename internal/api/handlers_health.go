// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	backend  string
	storeErr error
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, backend string, storeErr error) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		backend:  backend,
		storeErr: storeErr,
	}
}

// HandleHealth returns server health status. The server stays up when the
// document store is unavailable so the front end can show why.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"docstore": h.backend,
	}
	if h.storeErr != nil {
		resp["status"] = "degraded"
		resp["docstoreError"] = h.storeErr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
