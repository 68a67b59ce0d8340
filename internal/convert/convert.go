// Package convert turns staged uploads into printable PDF documents.
package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Conversion methods recorded in the manifest.
const (
	MethodPDF         = "pdf"
	MethodOffice      = "office"
	MethodImage       = "image"
	MethodText        = "text"
	MethodPlaceholder = "placeholder"
)

// ErrUnavailable means a converter cannot run in this environment.
var ErrUnavailable = errors.New("converter unavailable")

// Document is the printable result of a conversion.
type Document struct {
	Data        []byte
	Method      string
	PageCount   int
	Placeholder bool
	Notes       []string
}

// Converter produces a Document from an uploaded file.
type Converter interface {
	Name() string
	Accepts(filename string, data []byte) bool
	Convert(ctx context.Context, filename string, data []byte) (*Document, error)
}

// ConversionError is a recoverable failure of one converter.
type ConversionError struct {
	Converter string
	File      string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s conversion of %s failed: %v", e.Converter, e.File, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func hasExt(filename string, exts ...string) bool {
	e := ext(filename)
	for _, x := range exts {
		if e == x {
			return true
		}
	}
	return false
}
