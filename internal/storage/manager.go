package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/printrelay/backend/internal/models"
)

// ErrFileNotFound is returned for unknown staged file ids.
var ErrFileNotFound = errors.New("file not found")

// File statuses.
const (
	StatusUploaded  = "uploaded"
	StatusConverted = "converted"
	StatusSent      = "sent"
	StatusError     = "error"
)

// Store stages raw uploads until they are converted and sent.
type Store interface {
	Save(sessionID, name string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(sessionID, name string, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(sessionID string, limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Update(id string, fn func(*models.FileInfo)) (*models.FileInfo, error)
	ReadBytes(id string) ([]byte, error)
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error
	CompleteChunkedUpload(sessionID, uploadID, name string, totalChunks int) (*models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
	order     []string
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}, nil
}

// Save saves a file to the local filesystem.
func (s *LocalStore) Save(sessionID, name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     StatusUploaded,
	}

	s.register(info)
	return copyInfo(info), nil
}

// SaveBytes saves an in-memory payload.
func (s *LocalStore) SaveBytes(sessionID, name string, data []byte) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     StatusUploaded,
	}

	s.register(info)
	return copyInfo(info), nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	return copyInfo(info), nil
}

// List returns the files of a session in upload order. An empty sessionID
// lists every staged file. limit <= 0 means no limit.
func (s *LocalStore) List(sessionID string, limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0)
	for _, id := range s.order {
		info := s.files[id]
		if sessionID != "" && info.SessionID != sessionID {
			continue
		}
		list = append(list, copyInfo(info))
	}

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

func (s *LocalStore) register(info *models.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
	s.order = append(s.order, info.ID)
}

// Update applies fn to the stored metadata and returns the result.
func (s *LocalStore) Update(id string, fn func(*models.FileInfo)) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	fn(info)
	info.ID = id

	return copyInfo(info), nil
}

// ReadBytes returns the raw content of a staged file.
func (s *LocalStore) ReadBytes(id string) ([]byte, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}
	chunkDir, err := s.chunkDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	if err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// SaveChunkBytes saves an in-memory chunk.
func (s *LocalStore) SaveChunkBytes(uploadID string, chunkIndex int, data []byte) error {
	return s.SaveChunk(uploadID, chunkIndex, bytes.NewReader(data))
}

// CompleteChunkedUpload assembles all chunks into a final file.
func (s *LocalStore) CompleteChunkedUpload(sessionID, uploadID, name string, totalChunks int) (*models.FileInfo, error) {
	if totalChunks <= 0 {
		return nil, fmt.Errorf("invalid chunk count %d", totalChunks)
	}
	chunkDir, err := s.chunkDir(uploadID)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}
	defer out.Close()

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i))
		in, err := os.Open(chunkPath)
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}

	info := &models.FileInfo{
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Size:       totalSize,
		UploadedAt: time.Now(),
		Status:     StatusUploaded,
	}

	s.register(info)

	os.RemoveAll(chunkDir)

	return copyInfo(info), nil
}

// chunkDir rejects upload ids that would escape the chunk root.
func (s *LocalStore) chunkDir(uploadID string) (string, error) {
	if uploadID == "" || uploadID != filepath.Base(uploadID) || uploadID == "." || uploadID == ".." {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return filepath.Join(s.uploadDir, "chunks", uploadID), nil
}

func copyInfo(in *models.FileInfo) *models.FileInfo {
	out := *in
	if in.Notes != nil {
		out.Notes = append([]string(nil), in.Notes...)
	}
	return &out
}
