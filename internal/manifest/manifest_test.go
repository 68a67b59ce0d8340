package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printrelay/backend/internal/models"
)

func sampleFile() models.LogicalFile {
	return models.LogicalFile{
		FileID:      "f-1",
		JobID:       "job-1",
		DisplayName: "thesis.pdf",
		Payload:     []byte("%PDF-1.4 sample"),
		Checksum:    "abc123",
		ChunkSize:   300,
		PageCount:   12,
		Method:      "pdf",
		Settings:    models.JobSettings{Copies: 2, ColorMode: models.ColorModeColor, Duplex: true, PaperSize: models.PaperA4},
		Sender:      models.SenderIdentity{Name: "Asha", ID: "stu-42"},
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("IST", 19800)),
	}
}

func TestBuild_RequiredKeys(t *testing.T) {
	fields := Build(sampleFile(), 5)

	for _, k := range []string{
		FieldFileName, FieldFragmentCount, FieldSHA256, FieldSettings,
		FieldSender, FieldCreatedAt, FieldMethod,
	} {
		assert.Contains(t, fields, k)
	}
	assert.Equal(t, 5, fields[FieldFragmentCount])
	assert.Equal(t, "abc123", fields[FieldSHA256])
	assert.Equal(t, StatusUploaded, fields[FieldStatus])
	assert.Equal(t, int64(15), fields[FieldSize])
	assert.Equal(t, time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC), fields[FieldCreatedAt])
	assert.NotContains(t, fields[FieldSender], "contact")
}

func TestBuild_Pure(t *testing.T) {
	f := sampleFile()
	assert.Equal(t, Build(f, 3), Build(f, 3))
	assert.Equal(t, Build(f, 0), Build(f, 0))
}

func TestBuild_PreliminaryDiffersOnlyInCountAndStatus(t *testing.T) {
	f := sampleFile()
	pre := Build(f, 0)
	final := Build(f, 7)

	assert.False(t, Complete(pre))
	assert.True(t, Complete(final))
	assert.Equal(t, StatusUploading, pre[FieldStatus])

	for k, v := range final {
		if k == FieldFragmentCount || k == FieldStatus {
			continue
		}
		assert.Equal(t, v, pre[k], k)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "f-1_meta", Key("f-1"))
	id, ok := FileIDFromKey("f-1_meta")
	assert.True(t, ok)
	assert.Equal(t, "f-1", id)
	_, ok = FileIDFromKey("f-1_0")
	assert.False(t, ok)
}

func TestFragmentCount_NumericTypes(t *testing.T) {
	for _, v := range []any{int(4), int64(4), uint64(4), float64(4), int8(4)} {
		assert.Equal(t, 4, FragmentCount(map[string]any{FieldFragmentCount: v}), "%T", v)
	}
	assert.Equal(t, 0, FragmentCount(map[string]any{}))
}

func TestPaymentFrom(t *testing.T) {
	fields := Build(sampleFile(), 2)
	_, ok := PaymentFrom(fields)
	assert.False(t, ok)

	fields[FieldPayInfo] = PaymentFields(models.PaymentRecord{
		Amount:   48,
		Currency: "INR",
		PayeeID:  "shop@upi",
		Status:   models.PaymentRequested,
	})
	rec, ok := PaymentFrom(fields)
	require.True(t, ok)
	assert.Equal(t, 48.0, rec.Amount)
	assert.Equal(t, "INR", rec.Currency)
	assert.Equal(t, "shop@upi", rec.PayeeID)
	assert.False(t, rec.Estimated)
}

func TestPaymentFrom_LooseShapes(t *testing.T) {
	fields := map[string]any{
		FieldPayInfo: map[any]any{
			"amount":     int64(30),
			"upi":        "legacy@upi",
			"updated_at": "2026-03-01T10:00:00Z",
		},
	}
	rec, ok := PaymentFrom(fields)
	require.True(t, ok)
	assert.Equal(t, 30.0, rec.Amount)
	assert.Equal(t, "legacy@upi", rec.PayeeID)
	assert.Equal(t, models.PaymentRequested, rec.Status)
	assert.Equal(t, 2026, rec.UpdatedAt.Year())

	_, ok = PaymentFrom(map[string]any{FieldPayInfo: "garbage"})
	assert.False(t, ok)
}
