// Package raster renders PDF pages to in-memory images via MuPDF
// (go-fitz). Callers own persistence; the rasterizer never writes to
// disk.
package raster

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/gen2brain/go-fitz"
)

// Page is one rendered PDF page.
type Page struct {
	Index int // 0-based
	Image image.Image
}

// Rasterizer converts a PDF into an ordered page image sequence at a
// fixed DPI.
type Rasterizer struct {
	dpi float64
}

// New returns a Rasterizer rendering at the given DPI. Zero or
// negative DPI falls back to 150.
func New(dpi float64) *Rasterizer {
	if dpi <= 0 {
		dpi = 150
	}
	return &Rasterizer{dpi: dpi}
}

// Render rasterizes every page of the PDF at path, in page order.
// The returned slice length equals the PDF's page count.
func (r *Rasterizer) Render(ctx context.Context, path string) ([]Page, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count == 0 {
		return nil, fmt.Errorf("PDF %s has no pages", path)
	}

	start := time.Now()
	pages := make([]Page, 0, count)
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, fmt.Errorf("rendering page %d: %w", i, err)
		}
		pages = append(pages, Page{Index: i, Image: img})
	}

	slog.Info("raster: rendered document",
		"path", path, "pages", count, "dpi", r.dpi,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return pages, nil
}
