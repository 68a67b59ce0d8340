package convert

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

var textExts = []string{".txt", ".text", ".csv", ".md", ".log", ".json", ".xml", ".yaml", ".yml"}

// TextConverter typesets plain text in a monospace font.
type TextConverter struct {
	paper string
}

func NewTextConverter(paper string) *TextConverter { return &TextConverter{paper: paper} }

func (*TextConverter) Name() string { return MethodText }

func (*TextConverter) Accepts(filename string, data []byte) bool {
	return hasExt(filename, textExts...)
}

func (c *TextConverter) Convert(ctx context.Context, filename string, data []byte) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", filename)
	}

	pdf := newPDF(c.paper)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Courier", "", 9)
	pdf.AddPage()

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	if strings.TrimSpace(text) == "" {
		text = "(empty file)"
	}
	pdf.MultiCell(0, 4, tr(text), "", "L", false)

	out, err := output(pdf)
	if err != nil {
		return nil, fmt.Errorf("render text pdf: %w", err)
	}
	return &Document{Data: out, Method: MethodText, PageCount: pdf.PageNo()}, nil
}
