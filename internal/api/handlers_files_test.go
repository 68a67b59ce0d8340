// handlers_files_test.go - Tests for staged file handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/session"
	"github.com/printrelay/backend/internal/testutil"
)

func newFileTestHandler(t *testing.T) (*FileHandlerImpl, *testutil.MockStorage, *session.Manager, string) {
	t.Helper()
	store := testutil.NewMockStorage()
	sessionMgr := session.NewManager(nil)
	sess, err := sessionMgr.Create(models.SenderIdentity{Name: "Asha"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	h := NewFileHandler(store, sessionMgr, zap.NewNop()).(*FileHandlerImpl)
	return h, store, sessionMgr, sess.ID
}

func sessionContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, names []string, values []string) echo.Context {
	c := e.NewContext(req, rec)
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestFileHandler_HandleUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "valid file upload",
			request: uploadFileRequest{
				Name: "notes.pdf",
				Data: base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 hello")),
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "empty name",
			request: uploadFileRequest{
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "empty data",
			request: uploadFileRequest{
				Name: "notes.pdf",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "invalid base64",
			request: uploadFileRequest{
				Name: "notes.pdf",
				Data: "not-valid-base64!!!",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
		{
			name: "large file upload",
			request: uploadFileRequest{
				Name: "scan.png",
				Data: base64.StdEncoding.EncodeToString(make([]byte, 1024*1024)), // 1MB
			},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store, sessionMgr, sessionID := newFileTestHandler(t)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})

			err := handler.HandleUploadFile(c)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
				if store.GetFileCount() != 0 {
					t.Errorf("expected nothing staged, got %d files", store.GetFileCount())
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Errorf("failed to unmarshal response: %v", err)
				return
			}
			if response.ID == "" {
				t.Error("expected non-empty ID in response")
			}
			if response.Name != tt.request.Name {
				t.Errorf("expected name %s, got %s", tt.request.Name, response.Name)
			}
			if response.SessionID != sessionID {
				t.Errorf("expected session %s, got %s", sessionID, response.SessionID)
			}

			sess, _ := sessionMgr.Get(sessionID)
			if len(sess.FileIDs) != 1 || sess.FileIDs[0] != response.ID {
				t.Errorf("expected session to list %s, got %v", response.ID, sess.FileIDs)
			}
		})
	}
}

func TestFileHandler_HandleUploadFileMultipart(t *testing.T) {
	handler, store, _, sessionID := newFileTestHandler(t)

	e := echo.New()
	body, contentType := multipartBody(t, "poster.jpg", []byte("jpeg bytes"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})

	if err := handler.HandleUploadFile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	var info models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	data, err := store.GetFileData(info.ID)
	if err != nil {
		t.Fatalf("file not staged: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("expected staged content %q, got %q", "jpeg bytes", data)
	}
}

func TestFileHandler_UnknownSession(t *testing.T) {
	handler, _, _, _ := newFileTestHandler(t)

	e := echo.New()
	body, _ := json.Marshal(uploadFileRequest{Name: "a.pdf", Data: base64.StdEncoding.EncodeToString([]byte("x"))})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := sessionContext(e, req, rec, []string{"sessionId"}, []string{"gone"})

	err := handler.HandleUploadFile(c)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, apiErr.Status)
	}
}

func TestFileHandler_ChunkedUpload(t *testing.T) {
	handler, store, sessionMgr, sessionID := newFileTestHandler(t)
	e := echo.New()

	uploadID := "upload-v1"
	chunks := [][]byte{[]byte("chunk one "), []byte("chunk two")}

	// Chunk 0 as multipart
	body, contentType := multipartBody(t, "blob", chunks[0], map[string]string{
		"uploadId":   uploadID,
		"chunkIndex": "0",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files/chunk", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	if err := handler.HandleUploadChunk(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})); err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}

	// Chunk 1 as base64 JSON
	jsonBody, _ := json.Marshal(uploadChunkRequest{
		UploadID:   uploadID,
		ChunkIndex: 1,
		Data:       base64.StdEncoding.EncodeToString(chunks[1]),
	})
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files/chunk", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	if err := handler.HandleUploadChunk(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})); err != nil {
		t.Fatalf("chunk 1: %v", err)
	}

	// Complete
	jsonBody, _ = json.Marshal(completeUploadRequest{UploadID: uploadID, Name: "thesis.pdf", TotalChunks: 2})
	req = httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files/complete", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	if err := handler.HandleCompleteUpload(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	var info models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	data, _ := store.GetFileData(info.ID)
	if string(data) != "chunk one chunk two" {
		t.Errorf("expected assembled content, got %q", data)
	}
	sess, _ := sessionMgr.Get(sessionID)
	if len(sess.FileIDs) != 1 {
		t.Errorf("expected 1 session file, got %d", len(sess.FileIDs))
	}
}

func TestFileHandler_ChunkValidation(t *testing.T) {
	tests := []struct {
		name    string
		request interface{}
		errCode string
	}{
		{"missing upload id", uploadChunkRequest{ChunkIndex: 0, Data: "eA=="}, "VALIDATION_ERROR"},
		{"negative index", uploadChunkRequest{UploadID: "u", ChunkIndex: -1, Data: "eA=="}, "VALIDATION_ERROR"},
		{"missing data", uploadChunkRequest{UploadID: "u"}, "VALIDATION_ERROR"},
		{"bad base64", uploadChunkRequest{UploadID: "u", Data: "%%%"}, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _, sessionID := newFileTestHandler(t)
			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files/chunk", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			err := handler.HandleUploadChunk(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID}))
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("expected APIError, got %T", err)
			}
			if apiErr.Code != tt.errCode {
				t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
			}
		})
	}
}

func TestFileHandler_CompleteMissingChunk(t *testing.T) {
	handler, store, _, sessionID := newFileTestHandler(t)
	store.SaveChunkBytes("u1", 0, []byte("only chunk"))

	e := echo.New()
	body, _ := json.Marshal(completeUploadRequest{UploadID: "u1", Name: "a.pdf", TotalChunks: 2})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/:sessionId/files/complete", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	err := handler.HandleCompleteUpload(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID}))
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, apiErr.Status)
	}
}

func TestFileHandler_HandleListFiles(t *testing.T) {
	handler, store, _, sessionID := newFileTestHandler(t)
	store.AddFile("f1", sessionID, "a.pdf", []byte("a"))
	store.AddFile("f2", "other-session", "b.pdf", []byte("b"))
	store.AddFile("f3", sessionID, "c.docx", []byte("c"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/:sessionId/files", nil)
	rec := httptest.NewRecorder()

	if err := handler.HandleListFiles(sessionContext(e, req, rec, []string{"sessionId"}, []string{sessionID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var files []models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].ID != "f1" || files[1].ID != "f3" {
		t.Errorf("expected [f1 f3], got [%s %s]", files[0].ID, files[1].ID)
	}
}

func TestFileHandler_HandleGetFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		owner      string
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name:       "existing file",
			fileID:     "file-1",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing file id",
			fileID:     "",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "non-existent file",
			fileID:     "does-not-exist",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
		{
			name:       "file of another session",
			fileID:     "file-1",
			owner:      "someone-else",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store, _, sessionID := newFileTestHandler(t)
			owner := tt.owner
			if owner == "" {
				owner = sessionID
			}
			store.AddFile("file-1", owner, "a.pdf", []byte("content"))

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/sessions/:sessionId/files/:fileId", nil)
			rec := httptest.NewRecorder()
			c := sessionContext(e, req, rec, []string{"sessionId", "fileId"}, []string{sessionID, tt.fileID})

			err := handler.HandleGetFile(c)

			if tt.wantErr {
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Errorf("failed to unmarshal response: %v", err)
				return
			}
			if response.ID != tt.fileID {
				t.Errorf("expected ID %s, got %s", tt.fileID, response.ID)
			}
		})
	}
}

func TestFileHandler_HandleDeleteFile(t *testing.T) {
	handler, store, sessionMgr, sessionID := newFileTestHandler(t)
	store.AddFile("file-1", sessionID, "a.pdf", []byte("content"))
	sessionMgr.AddFile(sessionID, "file-1")

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/:sessionId/files/:fileId", nil)
	rec := httptest.NewRecorder()
	c := sessionContext(e, req, rec, []string{"sessionId", "fileId"}, []string{sessionID, "file-1"})

	if err := handler.HandleDeleteFile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if store.GetFileCount() != 0 {
		t.Error("file should have been deleted")
	}
	sess, _ := sessionMgr.Get(sessionID)
	if len(sess.FileIDs) != 0 {
		t.Errorf("expected session files to be empty, got %v", sess.FileIDs)
	}

	// Second delete is a 404
	rec = httptest.NewRecorder()
	c = sessionContext(e, req, rec, []string{"sessionId", "fileId"}, []string{sessionID, "file-1"})
	err := handler.HandleDeleteFile(c)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}
