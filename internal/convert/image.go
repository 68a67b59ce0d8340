package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-pdf/fpdf"
)

// ImageConverter places a PNG or JPEG on a single page, scaled to fit.
type ImageConverter struct {
	paper string
}

func NewImageConverter(paper string) *ImageConverter { return &ImageConverter{paper: paper} }

func (*ImageConverter) Name() string { return MethodImage }

func (*ImageConverter) Accepts(filename string, data []byte) bool {
	return hasExt(filename, ".png", ".jpg", ".jpeg")
}

func (c *ImageConverter) Convert(ctx context.Context, filename string, data []byte) (*Document, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("image %s has no pixels", filename)
	}

	imageType := "PNG"
	if format == "jpeg" {
		imageType = "JPG"
	}

	pdf := newPDF(c.paper)
	if cfg.Width > cfg.Height {
		pdf.AddPageFormat("L", pdf.GetPageSizeStr(normalizePaper(c.paper)))
	} else {
		pdf.AddPage()
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(filename, opts, bytes.NewReader(data))
	if pdf.Err() {
		return nil, fmt.Errorf("register image: %w", pdf.Error())
	}

	pageW, pageH := pdf.GetPageSize()
	boxW, boxH := pageW-2*margin, pageH-2*margin
	scale := min(boxW/float64(cfg.Width), boxH/float64(cfg.Height))
	w, h := float64(cfg.Width)*scale, float64(cfg.Height)*scale
	pdf.ImageOptions(filename, (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")

	out, err := output(pdf)
	if err != nil {
		return nil, fmt.Errorf("render image pdf: %w", err)
	}
	return &Document{Data: out, Method: MethodImage, PageCount: 1}, nil
}

func normalizePaper(paper string) string {
	switch paper {
	case "A3", "Letter", "Legal":
		return paper
	}
	return "A4"
}
