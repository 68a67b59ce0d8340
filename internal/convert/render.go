package convert

import (
	"bytes"
	"strings"

	"github.com/go-pdf/fpdf"
)

const margin = 15.0

func newPDF(paper string) *fpdf.Fpdf {
	switch strings.ToUpper(paper) {
	case "A3", "LETTER", "LEGAL":
	default:
		paper = "A4"
	}
	pdf := fpdf.New("P", "mm", paper, "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCreator("printrelay", true)
	return pdf
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
