package layout

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// gradientPage returns a page image with distinguishable pixel values.
func gradientPage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	return img
}

func TestExtractWritesCrop(t *testing.T) {
	ws := t.TempDir()
	e, err := NewExtractor(ws)
	if err != nil {
		t.Fatal(err)
	}

	page := gradientPage(800, 1000)
	regions := []Region{
		{PageIndex: 3, Label: LabelFigure, Confidence: 0.9, Box: Box{Left: 100, Top: 200, Right: 300, Bottom: 400}},
		{PageIndex: 3, Label: LabelTable, Confidence: 0.85, Box: Box{Left: 50, Top: 500, Right: 250, Bottom: 600}},
	}

	artifacts, err := e.Extract(page, regions, FigureTableProfile().Pad)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(artifacts))
	}

	// Traceable filenames: page index and region index.
	if got := filepath.Base(artifacts[0].Path); got != "page_3_block_0.jpg" {
		t.Errorf("artifact path = %s, want page_3_block_0.jpg", got)
	}
	if got := filepath.Base(artifacts[1].Path); got != "page_3_block_1.jpg" {
		t.Errorf("artifact path = %s, want page_3_block_1.jpg", got)
	}

	for _, a := range artifacts {
		f, err := os.Open(a.Path)
		if err != nil {
			t.Fatalf("crop not written: %v", err)
		}
		img, err := jpeg.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("crop is not a decodable JPEG: %v", err)
		}
		if img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
			t.Error("crop has empty bounds")
		}

		// Base64 copy matches the file on disk.
		disk, _ := os.ReadFile(a.Path)
		decoded, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			t.Fatalf("base64 copy invalid: %v", err)
		}
		if string(decoded) != string(disk) {
			t.Error("base64 copy differs from persisted crop")
		}
	}
}

func TestExtractClampsPadding(t *testing.T) {
	ws := t.TempDir()
	e, err := NewExtractor(ws)
	if err != nil {
		t.Fatal(err)
	}

	page := gradientPage(200, 200)
	// Box touches every page edge; padding would run off all sides.
	regions := []Region{
		{PageIndex: 0, Label: LabelEquation, Confidence: 0.95, Box: Box{Left: 0, Top: 0, Right: 200, Bottom: 200}},
	}

	artifacts, err := e.Extract(page, regions, Padding{Left: 50, Right: 50, Top: 50, Bottom: 50})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	f, err := os.Open(artifacts[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 200 {
		t.Errorf("clamped crop = %dx%d, want 200x200", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestPaddedRect(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 1000)
	tests := []struct {
		name string
		box  Box
		pad  Padding
		want image.Rectangle
	}{
		{
			name: "interior box expands fully",
			box:  Box{Left: 100, Top: 100, Right: 200, Bottom: 200},
			pad:  Padding{Left: 5, Right: 10, Top: 15, Bottom: 5},
			want: image.Rect(95, 85, 210, 205),
		},
		{
			name: "corner box clamps to origin",
			box:  Box{Left: 2, Top: 3, Right: 50, Bottom: 60},
			pad:  Padding{Left: 5, Right: 5, Top: 5, Bottom: 5},
			want: image.Rect(0, 0, 55, 65),
		},
		{
			name: "edge box clamps to page size",
			box:  Box{Left: 990, Top: 990, Right: 1000, Bottom: 1000},
			pad:  Padding{Left: 5, Right: 10, Top: 15, Bottom: 5},
			want: image.Rect(985, 975, 1000, 1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paddedRect(tt.box, tt.pad, bounds)
			if got != tt.want {
				t.Errorf("paddedRect = %v, want %v", got, tt.want)
			}
			if !got.In(bounds) {
				t.Errorf("padded rect %v leaves page bounds", got)
			}
			if got.Dx() <= 0 || got.Dy() <= 0 {
				t.Error("padded rect is degenerate")
			}
		})
	}
}

func TestExtractEmptyBox(t *testing.T) {
	e, err := NewExtractor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	page := gradientPage(100, 100)
	// Entirely outside the page: intersection is empty.
	regions := []Region{
		{PageIndex: 0, Label: LabelFigure, Box: Box{Left: 500, Top: 500, Right: 600, Bottom: 600}},
	}
	if _, err := e.Extract(page, regions, Padding{}); err == nil {
		t.Fatal("expected error for region outside page bounds")
	}
}
