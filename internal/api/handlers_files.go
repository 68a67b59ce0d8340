// handlers_files.go - Staged file handlers
package api

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/session"
	"github.com/printrelay/backend/internal/storage"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store      storage.Store
	sessionMgr *session.Manager
	log        *zap.Logger
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, sessionMgr *session.Manager, log *zap.Logger) FileHandler {
	return &FileHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
		log:        log,
	}
}

// HandleUploadFile accepts a multipart file, or a base64 JSON body, and stages it
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	sessionID, err := h.session(c)
	if err != nil {
		return err
	}

	var info *models.FileInfo
	if isMultipart(c) {
		file, err := c.FormFile("file")
		if err != nil {
			return NewBadRequestError("no file provided", err)
		}
		src, err := file.Open()
		if err != nil {
			return NewInternalError("failed to open uploaded file", err)
		}
		defer src.Close()

		info, err = h.store.Save(sessionID, file.Filename, src)
		if err != nil {
			return NewInternalError("failed to save file", err)
		}
	} else {
		var req uploadFileRequest
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		if err := req.validate(); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return NewBadRequestError("invalid base64 data", err)
		}
		info, err = h.store.SaveBytes(sessionID, req.Name, decoded)
		if err != nil {
			return NewInternalError("failed to save file", err)
		}
	}

	if err := h.sessionMgr.AddFile(sessionID, info.ID); err != nil {
		h.store.Delete(info.ID)
		return NewNotFoundError("session", sessionID)
	}
	h.log.Info("file staged",
		zap.String("session_id", sessionID),
		zap.String("file_id", info.ID),
		zap.String("name", info.Name),
		zap.Int64("size", info.Size))

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single chunk of a chunked upload, either as a
// multipart form (file, uploadId, chunkIndex) or as base64 JSON
func (h *FileHandlerImpl) HandleUploadChunk(c echo.Context) error {
	if _, err := h.session(c); err != nil {
		return err
	}

	if isMultipart(c) {
		uploadID := c.FormValue("uploadId")
		if uploadID == "" {
			return NewValidationError("uploadId")
		}
		chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
		if err != nil || chunkIndex < 0 {
			return NewValidationError("chunkIndex")
		}
		file, err := c.FormFile("file")
		if err != nil {
			return NewBadRequestError("no chunk data provided", err)
		}
		src, err := file.Open()
		if err != nil {
			return NewInternalError("failed to open chunk", err)
		}
		defer src.Close()

		if err := h.store.SaveChunk(uploadID, chunkIndex, src); err != nil {
			return NewInternalError("failed to save chunk", err)
		}
		return c.NoContent(http.StatusAccepted)
	}

	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}
	if err := h.store.SaveChunkBytes(req.UploadID, req.ChunkIndex, decoded); err != nil {
		return NewInternalError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload assembles a chunked upload into a staged file
func (h *FileHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	sessionID, err := h.session(c)
	if err != nil {
		return err
	}

	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	info, err := h.store.CompleteChunkedUpload(sessionID, req.UploadID, req.Name, req.TotalChunks)
	if err != nil {
		return NewBadRequestError("failed to assemble chunks", err)
	}
	if err := h.sessionMgr.AddFile(sessionID, info.ID); err != nil {
		h.store.Delete(info.ID)
		return NewNotFoundError("session", sessionID)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleListFiles returns the files staged in a session, oldest first
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	sessionID, err := h.session(c)
	if err != nil {
		return err
	}

	files, err := h.store.List(sessionID, 0)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	sessionID, err := h.session(c)
	if err != nil {
		return err
	}
	info, err := h.owned(sessionID, c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes a staged file
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	sessionID, err := h.session(c)
	if err != nil {
		return err
	}
	id := c.Param("fileId")
	if _, err := h.owned(sessionID, id); err != nil {
		return err
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}
	h.sessionMgr.RemoveFile(sessionID, id)

	return c.NoContent(http.StatusNoContent)
}

// session resolves and touches the session named in the path
func (h *FileHandlerImpl) session(c echo.Context) (string, error) {
	id := c.Param("sessionId")
	if id == "" {
		return "", NewValidationError("sessionId")
	}
	if !h.sessionMgr.Touch(id) {
		return "", NewNotFoundError("session", id)
	}
	return id, nil
}

// owned returns the file if it belongs to the session
func (h *FileHandlerImpl) owned(sessionID, id string) (*models.FileInfo, error) {
	if id == "" {
		return nil, NewValidationError("fileId")
	}
	info, err := h.store.Get(id)
	if err != nil || info.SessionID != sessionID {
		return nil, NewNotFoundError("file", id)
	}
	return info, nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type uploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64-encoded chunk
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.ChunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}
