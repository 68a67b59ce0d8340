package convert

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PlaceholderConverter renders a page that stands in for a file that could
// not be converted, so the job still carries one document per upload.
type PlaceholderConverter struct {
	now func() time.Time
}

func NewPlaceholderConverter() *PlaceholderConverter {
	return &PlaceholderConverter{now: time.Now}
}

func (*PlaceholderConverter) Name() string { return MethodPlaceholder }

func (*PlaceholderConverter) Accepts(string, []byte) bool { return true }

func (c *PlaceholderConverter) Convert(_ context.Context, filename string, _ []byte) (*Document, error) {
	return c.Render(filename, nil), nil
}

// Render returns a one-page PDF naming filename and the reasons. If the PDF
// cannot be produced the document is plain text.
func (c *PlaceholderConverter) Render(filename string, reasons []string) *Document {
	doc := &Document{Method: MethodPlaceholder, PageCount: 1, Placeholder: true, Notes: reasons}

	pdf := newPDF("A4")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr("Could not convert "+filename), "", "L", false)
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, tr("Please bring the original file to the counter."), "", "L", false)
	if len(reasons) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Courier", "", 9)
		for _, r := range reasons {
			pdf.MultiCell(0, 4, tr("- "+r), "", "L", false)
		}
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 4, c.now().Format(time.RFC1123), "", 1, "L", false, 0, "")

	out, err := output(pdf)
	if err != nil {
		doc.Data = []byte(fmt.Sprintf("Could not convert %s\n\n%s\n", filename, strings.Join(reasons, "\n")))
		doc.Notes = append(doc.Notes, "placeholder pdf failed: "+err.Error())
		return doc
	}
	doc.Data = out
	return doc
}
