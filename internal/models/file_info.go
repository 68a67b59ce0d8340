package models

import "time"

// FileInfo represents metadata about a staged upload and its converted document.
type FileInfo struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId,omitempty"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Status      string    `json:"status"` // "uploaded", "converted", "sent", "error"
	SHA256      string    `json:"sha256,omitempty"`
	Method      string    `json:"method,omitempty"`
	PageCount   int       `json:"pageCount,omitempty"`
	Placeholder bool      `json:"placeholder,omitempty"`
	Notes       []string  `json:"notes,omitempty"`
}
