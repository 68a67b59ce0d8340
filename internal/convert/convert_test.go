package convert

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, "page")
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func isPDF(data []byte) bool { return bytes.HasPrefix(data, []byte("%PDF-")) }

func TestPDFConverter(t *testing.T) {
	c := NewPDFConverter()
	data := samplePDF(t, 3)

	assert.True(t, c.Accepts("scan.PDF", nil))
	assert.True(t, c.Accepts("noext", data))
	assert.False(t, c.Accepts("notes.txt", []byte("hello")))

	doc, err := c.Convert(context.Background(), "scan.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, MethodPDF, doc.Method)
	assert.Equal(t, data, doc.Data)

	_, err = c.Convert(context.Background(), "broken.pdf", []byte("%PDF-1.4 garbage"))
	assert.Error(t, err)
}

func TestTextConverter(t *testing.T) {
	c := NewTextConverter("A4")
	require.True(t, c.Accepts("notes.md", nil))

	doc, err := c.Convert(context.Background(), "notes.txt", []byte("hello\r\nworld\tand more"))
	require.NoError(t, err)
	assert.True(t, isPDF(doc.Data))
	assert.Equal(t, 1, doc.PageCount)
	assert.Equal(t, MethodText, doc.Method)

	n, err := PageCount(doc.Data)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.Convert(context.Background(), "bin.txt", []byte{0xff, 0xfe, 0x00})
	assert.Error(t, err)
}

func TestTextConverter_Paginates(t *testing.T) {
	c := NewTextConverter("A4")
	doc, err := c.Convert(context.Background(), "long.log", bytes.Repeat([]byte("line\n"), 400))
	require.NoError(t, err)
	assert.Greater(t, doc.PageCount, 1)
}

func TestImageConverter(t *testing.T) {
	c := NewImageConverter("Letter")
	require.True(t, c.Accepts("photo.JPG", nil))
	require.False(t, c.Accepts("photo.gif", nil))

	doc, err := c.Convert(context.Background(), "wide.png", samplePNG(t, 80, 20))
	require.NoError(t, err)
	assert.True(t, isPDF(doc.Data))
	assert.Equal(t, 1, doc.PageCount)
	assert.Equal(t, MethodImage, doc.Method)

	_, err = c.Convert(context.Background(), "fake.png", []byte("not an image"))
	assert.Error(t, err)
}

func TestOfficeConverter_Unavailable(t *testing.T) {
	c := NewOfficeConverter("printrelay-missing-office-binary")
	assert.True(t, c.Accepts("report.docx", nil))
	assert.False(t, c.Accepts("report.pdf", nil))

	_, err := c.Convert(context.Background(), "report.docx", []byte("PK"))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPlaceholder(t *testing.T) {
	doc := NewPlaceholderConverter().Render("weird.bin", []string{"no converter accepts weird.bin"})
	assert.True(t, doc.Placeholder)
	assert.True(t, isPDF(doc.Data))
	assert.Equal(t, MethodPlaceholder, doc.Method)
	assert.Equal(t, 1, doc.PageCount)
}

func TestChain(t *testing.T) {
	chain := DefaultChain(ChainOptions{OfficeBinary: "printrelay-missing-office-binary"}, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		file        string
		data        []byte
		method      string
		placeholder bool
		noteHas     string
	}{
		{"pdf passthrough", "a.pdf", samplePDF(t, 2), MethodPDF, false, ""},
		{"text", "a.txt", []byte("hi"), MethodText, false, ""},
		{"image", "a.png", samplePNG(t, 10, 30), MethodImage, false, ""},
		{"office missing", "a.docx", []byte("PK"), MethodPlaceholder, true, "unavailable"},
		{"unknown type", "a.bin", []byte{1, 2, 3}, MethodPlaceholder, true, "no converter accepts a.bin"},
		{"corrupt pdf", "a.pdf", []byte("%PDF-1.7 nope"), MethodPlaceholder, true, "pdf conversion of a.pdf failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := chain.Convert(ctx, tt.file, tt.data)
			require.NotNil(t, doc)
			assert.Equal(t, tt.method, doc.Method)
			assert.Equal(t, tt.placeholder, doc.Placeholder)
			assert.NotEmpty(t, doc.Data)
			if tt.noteHas != "" {
				require.NotEmpty(t, doc.Notes)
				assert.Contains(t, doc.Notes[0], tt.noteHas)
			}
		})
	}
}

func TestConversionError(t *testing.T) {
	base := errors.New("boom")
	err := &ConversionError{Converter: "office", File: "x.docx", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "office conversion of x.docx failed: boom", err.Error())
}
