// Package parser extracts the linear text stream of a PDF. Structural
// segmentation is the layout detector's job on the raster side; this
// package only reproduces reading order as the layout engine emits it.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the full plain-text content of the PDF at path,
// pages concatenated in order. Pages that fail to decode are skipped;
// a document where every page fails is an error.
func ExtractText(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var b strings.Builder
	extracted := 0

	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("parser: skipping unextractable page", "path", path, "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		extracted++
	}

	if extracted == 0 {
		return "", fmt.Errorf("no text extractable from %s", path)
	}
	return b.String(), nil
}
