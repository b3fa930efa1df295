// Package rasterize turns PDF bytes into per-page PNG images.
package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultDPI matches the resolution OCR models are tuned for; higher DPI
// inflates page blobs without improving recognition.
const DefaultDPI = 150

// Rasterizer renders a PDF into one PNG per page, in page order.
type Rasterizer interface {
	PageImages(ctx context.Context, pdf []byte) ([][]byte, error)
}

// FitzRasterizer renders pages with MuPDF via go-fitz.
type FitzRasterizer struct {
	dpi    float64
	logger *slog.Logger
}

// Config configures a FitzRasterizer.
type Config struct {
	// DPI is the render resolution (default 150).
	DPI float64
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// NewFitzRasterizer creates a MuPDF-backed rasterizer.
func NewFitzRasterizer(cfg Config) *FitzRasterizer {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FitzRasterizer{
		dpi:    cfg.DPI,
		logger: cfg.Logger.With("component", "rasterize"),
	}
}

// PageImages renders every page of the PDF to PNG bytes. The PDF is
// validated with a page-count pass before rendering so corrupt or empty
// documents are rejected up front.
func (f *FitzRasterizer) PageImages(ctx context.Context, pdf []byte) ([][]byte, error) {
	pageCount, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := make([][]byte, 0, pageCount)
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// go-fitz pages are 0-based.
		img, err := doc.ImageDPI(i, f.dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		pages = append(pages, buf.Bytes())
	}

	f.logger.Debug("rasterized pdf", "pages", len(pages), "dpi", f.dpi)
	return pages, nil
}
