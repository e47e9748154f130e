// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version   string
	dashboard Dashboard
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, d Dashboard) HealthHandler {
	return &HealthHandlerImpl{
		version:   version,
		dashboard: d,
	}
}

// HandleHealth returns server health status. A failed last refresh means the
// backend is unreachable, which is reported but does not fail the check.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.dashboard != nil {
		backend := "ok"
		if err := h.dashboard.LastRefreshError(); err != nil {
			backend = err.Error()
		}
		resp["backend"] = backend
		resp["archive"] = h.dashboard.ArchiveEnabled()
	}
	return c.JSON(http.StatusOK, resp)
}
