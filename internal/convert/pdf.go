package convert

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	api.DisableConfigDir()
}

// PDFConverter passes PDFs through after validating them.
type PDFConverter struct{}

func NewPDFConverter() *PDFConverter { return &PDFConverter{} }

func (*PDFConverter) Name() string { return MethodPDF }

func (*PDFConverter) Accepts(filename string, data []byte) bool {
	return hasExt(filename, ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

func (*PDFConverter) Convert(ctx context.Context, filename string, data []byte) (*Document, error) {
	n, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	return &Document{Data: data, Method: MethodPDF, PageCount: n}, nil
}

// PageCount reads the page count of a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}
