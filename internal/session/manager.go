package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/convert"
	"github.com/printrelay/backend/internal/logging"
	"github.com/printrelay/backend/internal/models"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 200

// SessionMaxAge is how long idle sessions are kept
const SessionMaxAge = 2 * time.Hour

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
)

// State is everything the server remembers for one user between requests.
type State struct {
	Session      *models.Session
	LastAccessed time.Time

	// conversions caches converted documents by raw content hash and extension.
	conversions map[string]*convert.Document
}

// Manager holds the active sessions.
type Manager struct {
	sessions map[string]*State
	mu       sync.RWMutex
	log      *zap.Logger
	now      func() time.Time
}

// NewManager creates an empty session manager.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*State),
		log:      log,
		now:      time.Now,
	}
}

// Create opens a session for sender. When the limit is reached the least
// recently used idle session is evicted first.
func (m *Manager) Create(sender models.SenderIdentity) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= MaxSessions && !m.evictOldestLocked() {
		return nil, ErrTooManySessions
	}

	s := models.NewSession(uuid.New().String(), sender)
	s.CreatedAt = m.now()
	s.LastAccessed = s.CreatedAt
	m.sessions[s.ID] = &State{
		Session:      s,
		LastAccessed: s.CreatedAt,
		conversions:  make(map[string]*convert.Document),
	}
	m.log.Info("session created", zap.String("session_id", logging.ShortID(s.ID)), zap.String("sender", sender.Name))
	return copySession(s), nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (*models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return copySession(state.Session), true
}

// Touch updates the LastAccessed timestamp for a session.
func (m *Manager) Touch(id string) bool {
	return m.update(id, func(*State) {}) == nil
}

// SetSender replaces the sender identity.
func (m *Manager) SetSender(id string, sender models.SenderIdentity) error {
	return m.update(id, func(s *State) { s.Session.Sender = sender })
}

// AddFile records a staged file in upload order.
func (m *Manager) AddFile(id, fileID string) error {
	return m.update(id, func(s *State) {
		if !slices.Contains(s.Session.FileIDs, fileID) {
			s.Session.FileIDs = append(s.Session.FileIDs, fileID)
		}
	})
}

// RemoveFile forgets a staged file.
func (m *Manager) RemoveFile(id, fileID string) error {
	return m.update(id, func(s *State) {
		s.Session.FileIDs = slices.DeleteFunc(s.Session.FileIDs, func(v string) bool { return v == fileID })
	})
}

// RecordJob counts a submitted job and its files.
func (m *Manager) RecordJob(id, jobID string, files int) error {
	return m.update(id, func(s *State) {
		s.Session.JobIDs = append(s.Session.JobIDs, jobID)
		s.Session.JobsSent++
		s.Session.FilesSent += files
	})
}

func (m *Manager) update(id string, fn func(*State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(state)
	state.LastAccessed = m.now()
	state.Session.LastAccessed = state.LastAccessed
	return nil
}

// Delete closes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes sessions idle for longer than maxAge and returns
// them so their staged files can be deleted.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	var removed []*models.Session
	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, copySession(state.Session))
			m.log.Info("session expired",
				zap.String("session_id", logging.ShortID(id)),
				zap.Duration("idle", now.Sub(state.LastAccessed).Round(time.Second)))
		}
	}
	return removed
}

func (m *Manager) evictOldestLocked() bool {
	var oldestID string
	var oldest time.Time
	keepAliveCutoff := m.now().Add(-SessionKeepAliveWindow)
	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if oldestID == "" || state.LastAccessed.Before(oldest) {
			oldestID, oldest = id, state.LastAccessed
		}
	}
	if oldestID == "" {
		return false
	}
	delete(m.sessions, oldestID)
	m.log.Info("session evicted", zap.String("session_id", logging.ShortID(oldestID)))
	return true
}

// Conversion returns a cached conversion of data.
func (m *Manager) Conversion(id, filename string, data []byte) (*convert.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	doc, ok := state.conversions[conversionKey(filename, data)]
	return doc, ok
}

// StoreConversion caches doc for data. Placeholders are not cached so a
// retry after installing a converter can succeed.
func (m *Manager) StoreConversion(id, filename string, data []byte, doc *convert.Document) {
	if doc == nil || doc.Placeholder {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[id]; ok {
		state.conversions[conversionKey(filename, data)] = doc
	}
}

// DocumentConverter is satisfied by *convert.Chain.
type DocumentConverter interface {
	Convert(ctx context.Context, filename string, data []byte) *convert.Document
}

// CachingConverter consults the session cache before converting.
func (m *Manager) CachingConverter(id string, next DocumentConverter) DocumentConverter {
	return &cachingConverter{m: m, id: id, next: next}
}

type cachingConverter struct {
	m    *Manager
	id   string
	next DocumentConverter
}

func (c *cachingConverter) Convert(ctx context.Context, filename string, data []byte) *convert.Document {
	if doc, ok := c.m.Conversion(c.id, filename, data); ok {
		return doc
	}
	doc := c.next.Convert(ctx, filename, data)
	c.m.StoreConversion(c.id, filename, data, doc)
	return doc
}

func conversionKey(filename string, data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + strings.ToLower(filepath.Ext(filename))
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	cp.FileIDs = slices.Clone(s.FileIDs)
	cp.JobIDs = slices.Clone(s.JobIDs)
	return &cp
}
