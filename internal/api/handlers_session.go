// handlers_session.go - Polling session and failure recovery handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	dashboard Dashboard
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(d Dashboard) SessionHandler {
	return &SessionHandlerImpl{dashboard: d}
}

// HandleGetSession returns the active session and the last outcome
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	resp := map[string]interface{}{
		"active": nil,
		"last":   nil,
	}
	if snap, ok := h.dashboard.Session(); ok {
		resp["active"] = snap
	}
	if out, ok := h.dashboard.LastOutcome(); ok {
		last := map[string]interface{}{"outcome": out}
		if out.Err != nil {
			last["error"] = out.Err.Error()
		}
		resp["last"] = last
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleAbandonSession stops polling the active job
func (h *SessionHandlerImpl) HandleAbandonSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"abandoned": h.dashboard.AbandonSession(),
	})
}

// HandleGetRecovery returns the recovery dialog state
func (h *SessionHandlerImpl) HandleGetRecovery(c echo.Context) error {
	return c.JSON(http.StatusOK, h.dashboard.Recovery())
}

// HandleDismissRecovery closes the dialog and keeps the failed file
func (h *SessionHandlerImpl) HandleDismissRecovery(c echo.Context) error {
	h.dashboard.DismissRecovery()
	return c.JSON(http.StatusOK, h.dashboard.Recovery())
}

// HandleDeleteFailed deletes the failed file. On failure the dialog stays open.
func (h *SessionHandlerImpl) HandleDeleteFailed(c echo.Context) error {
	if err := h.dashboard.DeleteFailed(c.Request().Context()); err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, h.dashboard.Recovery())
}
