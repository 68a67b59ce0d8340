// Package manifest assembles and reads the per-file manifest record that
// tells the receiver how many fragments make up a document and where the
// receiver later attaches payment information.
package manifest

import (
	"strings"
	"time"

	"github.com/printrelay/backend/internal/models"
)

// KeySuffix is appended to a file id to form its manifest document id.
const KeySuffix = "_meta"

// Encoding tags fragments produced by chunker.Encode.
const Encoding = "base64"

// Manifest field names.
const (
	FieldFileID        = "file_id"
	FieldJobID         = "job_id"
	FieldFileName      = "file_name"
	FieldFragmentCount = "fragment_count"
	FieldSHA256        = "sha256"
	FieldSize          = "size_bytes"
	FieldPageCount     = "page_count"
	FieldMethod        = "method"
	FieldEncoding      = "encoding"
	FieldChunkSize     = "chunk_size"
	FieldSettings      = "settings"
	FieldSender        = "sender"
	FieldCreatedAt     = "created_at"
	FieldStatus        = "status"
	FieldPayInfo       = "payinfo"
)

// Manifest status values. Status is informational; readers decide
// completeness from fragment_count.
const (
	StatusUploading = "uploading"
	StatusUploaded  = "uploaded"
)

// Key returns the manifest document id for fileID.
func Key(fileID string) string {
	return fileID + KeySuffix
}

// FileIDFromKey strips the manifest suffix.
func FileIDFromKey(key string) (string, bool) {
	if !strings.HasSuffix(key, KeySuffix) {
		return "", false
	}
	return strings.TrimSuffix(key, KeySuffix), true
}

// Build returns the manifest fields of file with the given fragment count.
// It is a pure function of its arguments so the preliminary and the final
// write differ only in fragment_count and status.
func Build(file models.LogicalFile, fragmentCount int) map[string]any {
	status := StatusUploaded
	if fragmentCount == 0 {
		status = StatusUploading
	}

	sender := map[string]any{
		"name": file.Sender.Name,
		"id":   file.Sender.ID,
	}
	if file.Sender.Contact != "" {
		sender["contact"] = file.Sender.Contact
	}

	return map[string]any{
		FieldFileID:        file.FileID,
		FieldJobID:         file.JobID,
		FieldFileName:      file.DisplayName,
		FieldFragmentCount: fragmentCount,
		FieldSHA256:        file.Checksum,
		FieldSize:          int64(len(file.Payload)),
		FieldPageCount:     file.PageCount,
		FieldMethod:        file.Method,
		FieldEncoding:      Encoding,
		FieldChunkSize:     file.ChunkSize,
		FieldSettings: map[string]any{
			"copies":     file.Settings.Copies,
			"color_mode": string(file.Settings.ColorMode),
			"duplex":     file.Settings.Duplex,
			"paper_size": string(file.Settings.PaperSize),
		},
		FieldSender:    sender,
		FieldCreatedAt: file.CreatedAt.UTC(),
		FieldStatus:    status,
	}
}

// FragmentCount reads fragment_count from stored fields.
func FragmentCount(fields map[string]any) int {
	return asInt(fields[FieldFragmentCount])
}

// Complete reports whether the final manifest write has happened. A manifest
// with fragment_count 0 is still being uploaded.
func Complete(fields map[string]any) bool {
	return FragmentCount(fields) > 0
}

// PaymentFrom decodes the payinfo sub-record, if present.
func PaymentFrom(fields map[string]any) (*models.PaymentRecord, bool) {
	raw, ok := fields[FieldPayInfo]
	if !ok || raw == nil {
		return nil, false
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}

	rec := &models.PaymentRecord{
		Amount:    asFloat(m["amount"]),
		Currency:  asString(m["currency"]),
		PayeeID:   asString(m["payee_id"]),
		PayeeName: asString(m["payee_name"]),
		Status:    models.PaymentStatus(asString(m["status"])),
		Estimated: asBool(m["estimated"]),
		Note:      asString(m["note"]),
		UpdatedAt: asTime(m["updated_at"]),
	}
	if rec.PayeeID == "" {
		// older receivers wrote "upi"
		rec.PayeeID = asString(m["upi"])
	}
	if rec.Status == "" {
		rec.Status = models.PaymentRequested
	}
	return rec, true
}

// PaymentFields is the stored form of rec, used by receivers and tests.
func PaymentFields(rec models.PaymentRecord) map[string]any {
	m := map[string]any{
		"amount":    rec.Amount,
		"currency":  rec.Currency,
		"payee_id":  rec.PayeeID,
		"status":    string(rec.Status),
		"estimated": rec.Estimated,
	}
	if rec.PayeeName != "" {
		m["payee_name"] = rec.PayeeName
	}
	if rec.Note != "" {
		m["note"] = rec.Note
	}
	if !rec.UpdatedAt.IsZero() {
		m["updated_at"] = rec.UpdatedAt.UTC()
	}
	return m
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	}
	return nil, false
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return float64(asInt(v))
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}
