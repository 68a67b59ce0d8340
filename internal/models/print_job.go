// Package models contains domain types for the print relay.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ColorMode selects monochrome or color printing.
type ColorMode string

const (
	ColorModeBW    ColorMode = "bw"
	ColorModeColor ColorMode = "color"
)

// PaperSize is the requested sheet size.
type PaperSize string

const (
	PaperA4     PaperSize = "A4"
	PaperA3     PaperSize = "A3"
	PaperLetter PaperSize = "Letter"
	PaperLegal  PaperSize = "Legal"
)

// JobSettings is the print configuration shared by all files of a job.
type JobSettings struct {
	Copies    int       `json:"copies" yaml:"copies" firestore:"copies"`
	ColorMode ColorMode `json:"colorMode" yaml:"color_mode" firestore:"color_mode"`
	Duplex    bool      `json:"duplex" yaml:"duplex" firestore:"duplex"`
	PaperSize PaperSize `json:"paperSize" yaml:"paper_size" firestore:"paper_size"`
}

// DefaultJobSettings returns one single-sided monochrome A4 copy.
func DefaultJobSettings() JobSettings {
	return JobSettings{Copies: 1, ColorMode: ColorModeBW, PaperSize: PaperA4}
}

// Normalize fills zero values with defaults and canonicalizes enum casing.
func (s JobSettings) Normalize() JobSettings {
	if s.Copies <= 0 {
		s.Copies = 1
	}
	switch strings.ToLower(string(s.ColorMode)) {
	case "color", "colour":
		s.ColorMode = ColorModeColor
	default:
		s.ColorMode = ColorModeBW
	}
	switch strings.ToUpper(string(s.PaperSize)) {
	case "A3":
		s.PaperSize = PaperA3
	case "LETTER":
		s.PaperSize = PaperLetter
	case "LEGAL":
		s.PaperSize = PaperLegal
	default:
		s.PaperSize = PaperA4
	}
	return s
}

// Validate rejects settings the receiver cannot honor.
func (s JobSettings) Validate() error {
	if s.Copies < 1 || s.Copies > 999 {
		return fmt.Errorf("copies must be between 1 and 999, got %d", s.Copies)
	}
	switch s.ColorMode {
	case ColorModeBW, ColorModeColor:
	default:
		return fmt.Errorf("unknown color mode %q", s.ColorMode)
	}
	switch s.PaperSize {
	case PaperA4, PaperA3, PaperLetter, PaperLegal:
	default:
		return fmt.Errorf("unknown paper size %q", s.PaperSize)
	}
	return nil
}

// SenderIdentity identifies who submitted a job.
type SenderIdentity struct {
	Name    string `json:"name" firestore:"name"`
	ID      string `json:"id" firestore:"id"`
	Contact string `json:"contact,omitempty" firestore:"contact,omitempty"`
}

// LogicalFile is one user-submitted, possibly converted document.
// Payload is not modified after the file is handed to the uploader.
type LogicalFile struct {
	FileID        string         `json:"fileId"`
	JobID         string         `json:"jobId"`
	DisplayName   string         `json:"displayName"`
	Payload       []byte         `json:"-"`
	Checksum      string         `json:"sha256"`
	FragmentCount int            `json:"fragmentCount"`
	ChunkSize     int            `json:"chunkSize"`
	PageCount     int            `json:"pageCount"`
	Method        string         `json:"method"`
	Settings      JobSettings    `json:"settings"`
	Sender        SenderIdentity `json:"sender"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Fragment is one ordered slice of a base64-encoded payload.
type Fragment struct {
	FileID string `json:"fileId"`
	Index  int    `json:"chunkIndex"`
	Data   string `json:"data"`
}
