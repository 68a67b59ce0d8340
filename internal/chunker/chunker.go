// Package chunker turns document bytes into ordered, size-bounded base64
// fragments that fit in a text field of a single store document.
package chunker

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/printrelay/backend/internal/faults"
	"github.com/printrelay/backend/internal/models"
)

// Document field names of a fragment record.
const (
	FieldChunkIndex = "chunk_index"
	FieldData       = "data"
)

// Encode returns the standard base64 encoding of payload.
func Encode(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// Split slices encoded into pieces of at most chunkSize characters. The last
// piece may be shorter. Empty input yields no pieces.
func Split(encoded string, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", chunkSize, faults.ErrInvalidInput)
	}
	n := Count(len(encoded), chunkSize)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		parts = append(parts, encoded[i*chunkSize:end])
	}
	return parts, nil
}

// Count returns how many fragments Split produces for a text of length n.
func Count(n, chunkSize int) int {
	if chunkSize <= 0 || n <= 0 {
		return 0
	}
	return (n + chunkSize - 1) / chunkSize
}

// Fragments splits encoded into fragments owned by fileID.
func Fragments(fileID, encoded string, chunkSize int) ([]models.Fragment, error) {
	parts, err := Split(encoded, chunkSize)
	if err != nil {
		return nil, err
	}
	frags := make([]models.Fragment, len(parts))
	for i, p := range parts {
		frags[i] = models.Fragment{FileID: fileID, Index: i, Data: p}
	}
	return frags, nil
}

// FragmentKey is the document id of fragment index of fileID.
func FragmentKey(fileID string, index int) string {
	return fmt.Sprintf("%s_%d", fileID, index)
}

// FragmentFields is the stored form of f.
func FragmentFields(f models.Fragment) map[string]any {
	return map[string]any{
		FieldChunkIndex: f.Index,
		FieldData:       f.Data,
	}
}

// Join concatenates fragments in index order.
func Join(frags []models.Fragment) string {
	sorted := make([]models.Fragment, len(frags))
	copy(sorted, frags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var b strings.Builder
	for _, f := range sorted {
		b.WriteString(f.Data)
	}
	return b.String()
}
