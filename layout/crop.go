package layout

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
)

// jpegQuality is fixed for all persisted crops.
const jpegQuality = 95

// RegionArtifact is a cropped, persisted region image. Read-only after
// creation; the file lives only as long as the run workspace.
type RegionArtifact struct {
	Region Region
	// Path is <workspace>/page_<i>_block_<j>.jpg.
	Path string
	// Base64 is the JPEG bytes encoded for inline markdown embedding.
	Base64 string
}

// Extractor crops padded regions out of page images and persists them
// to the run workspace.
type Extractor struct {
	workspace string
}

// NewExtractor returns an extractor writing into workspace, creating
// the directory if needed.
func NewExtractor(workspace string) (*Extractor, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Extractor{workspace: workspace}, nil
}

// Extract crops every region of one page, in input order. The padded
// box is clamped to the page bounds, so padding that runs off the edge
// narrows silently rather than failing; crops are always non-empty for
// well-formed regions.
func (e *Extractor) Extract(page image.Image, regions []Region, pad Padding) ([]RegionArtifact, error) {
	artifacts := make([]RegionArtifact, 0, len(regions))
	for j, r := range regions {
		rect := paddedRect(r.Box, pad, page.Bounds())
		if rect.Empty() {
			return nil, fmt.Errorf("region %d on page %d has an empty box %v", j, r.PageIndex, r.Box)
		}

		crop := cropImage(page, rect)

		name := fmt.Sprintf("page_%d_block_%d.jpg", r.PageIndex, j)
		path := filepath.Join(e.workspace, name)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating crop file: %w", err)
		}
		err = jpeg.Encode(f, crop, &jpeg.Options{Quality: jpegQuality})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("encoding crop %s: %w", name, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("re-reading crop %s: %w", name, err)
		}

		artifacts = append(artifacts, RegionArtifact{
			Region: r,
			Path:   path,
			Base64: base64.StdEncoding.EncodeToString(data),
		})
	}
	return artifacts, nil
}

// paddedRect expands the box by the padding policy and clamps it to
// bounds.
func paddedRect(b Box, pad Padding, bounds image.Rectangle) image.Rectangle {
	rect := image.Rect(
		int(b.Left)-pad.Left,
		int(b.Top)-pad.Top,
		int(b.Right)+pad.Right,
		int(b.Bottom)+pad.Bottom,
	)
	return rect.Intersect(bounds)
}

// cropImage copies the rect portion of src into a fresh RGBA image.
func cropImage(src image.Image, rect image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}
