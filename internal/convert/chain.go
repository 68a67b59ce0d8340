package convert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/metrics"
)

// Chain tries converters in order and falls back to a placeholder page.
type Chain struct {
	converters  []Converter
	placeholder *PlaceholderConverter
	log         *zap.Logger
	metrics     *metrics.Metrics
}

// NewChain returns a Chain over converters. log and m may be nil.
func NewChain(log *zap.Logger, m *metrics.Metrics, converters ...Converter) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{
		converters:  converters,
		placeholder: NewPlaceholderConverter(),
		log:         log,
		metrics:     m,
	}
}

// ChainOptions configures DefaultChain.
type ChainOptions struct {
	OfficeBinary string
	PaperSize    string
}

// DefaultChain is pdf, office, image, text.
func DefaultChain(opts ChainOptions, log *zap.Logger, m *metrics.Metrics) *Chain {
	return NewChain(log, m,
		NewPDFConverter(),
		NewOfficeConverter(opts.OfficeBinary),
		NewImageConverter(opts.PaperSize),
		NewTextConverter(opts.PaperSize),
	)
}

// Convert never fails: when no converter succeeds the result is a
// placeholder document whose Notes explain why.
func (c *Chain) Convert(ctx context.Context, filename string, data []byte) *Document {
	var notes []string
	for _, conv := range c.converters {
		if !conv.Accepts(filename, data) {
			continue
		}
		doc, err := conv.Convert(ctx, filename, data)
		if err == nil {
			doc.Notes = append(notes, doc.Notes...)
			c.metrics.Conversion(doc.Method)
			c.log.Debug("converted",
				zap.String("file", filename),
				zap.String("method", doc.Method),
				zap.Int("pages", doc.PageCount))
			return doc
		}

		if errors.Is(err, ErrUnavailable) {
			c.log.Debug("converter unavailable", zap.String("converter", conv.Name()), zap.Error(err))
		} else {
			c.log.Warn("conversion failed", zap.String("file", filename), zap.Error(err))
		}
		notes = append(notes, (&ConversionError{Converter: conv.Name(), File: filename, Err: err}).Error())
	}

	if len(notes) == 0 {
		notes = append(notes, fmt.Sprintf("no converter accepts %s", filename))
	}
	doc := c.placeholder.Render(filename, notes)
	c.metrics.Conversion(doc.Method)
	return doc
}
