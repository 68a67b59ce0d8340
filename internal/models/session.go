package models

import "time"

// Session is the per-user context the front end keeps between requests.
type Session struct {
	ID           string         `json:"id"`
	Sender       SenderIdentity `json:"sender"`
	FileIDs      []string       `json:"fileIds"`
	JobIDs       []string       `json:"jobIds"`
	JobsSent     int            `json:"jobsSent"`
	FilesSent    int            `json:"filesSent"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

// NewSession creates a session for the given sender.
func NewSession(id string, sender SenderIdentity) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Sender:       sender,
		FileIDs:      make([]string, 0),
		JobIDs:       make([]string, 0),
		CreatedAt:    now,
		LastAccessed: now,
	}
}
