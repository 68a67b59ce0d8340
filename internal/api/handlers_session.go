// handlers_session.go - Sender session handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionMgr *session.Manager) SessionHandler {
	return &SessionHandlerImpl{sessionMgr: sessionMgr}
}

// HandleCreateSession opens a session for a sender
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req senderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	sess, err := h.sessionMgr.Create(req.identity())
	if err != nil {
		return FromError("failed to create session", err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetSession returns the session and refreshes its idle timer
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.Touch(id) {
		return NewNotFoundError("session", id)
	}
	sess, ok := h.sessionMgr.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleUpdateSender replaces the sender identity of a session
func (h *SessionHandlerImpl) HandleUpdateSender(c echo.Context) error {
	id := c.Param("sessionId")

	var req senderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	if err := h.sessionMgr.SetSender(id, req.identity()); err != nil {
		return NewNotFoundError("session", id)
	}
	sess, _ := h.sessionMgr.Get(id)
	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive keeps a session from expiring while the user is idle
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

type senderRequest struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Contact string `json:"contact"`
}

func (r *senderRequest) identity() models.SenderIdentity {
	return models.SenderIdentity{
		Name:    strings.TrimSpace(r.Name),
		ID:      strings.TrimSpace(r.ID),
		Contact: strings.TrimSpace(r.Contact),
	}
}

func (r *senderRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name")
	}
	return nil
}
