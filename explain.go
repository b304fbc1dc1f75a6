package paperochi

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bbiangul/paperochi/layout"
	"github.com/bbiangul/paperochi/llm"
)

// regionKind distinguishes the two explanation flavours.
type regionKind int

const (
	kindFormula regionKind = iota
	kindFigure
)

// ExplanationResult pairs one region artifact with its generated text.
// At most one is produced per artifact per run.
type ExplanationResult struct {
	Artifact layout.RegionArtifact
	Text     string
}

// explainAll produces the aggregated explanation report and the UI
// gallery. Formulas come first, then figures/tables, each in page then
// region order. N artifacts yield N results or the run aborts with a
// recorded failure; nothing is dropped silently.
func (p *pipeline) explainAll(ctx context.Context, mode ProcessingMode, formulaArts, figureArts []layout.RegionArtifact, pdfText string) (string, []GalleryItem, error) {
	var b strings.Builder
	var gallery []GalleryItem

	if mode.explainFormulas() && len(formulaArts) > 0 {
		b.WriteString("# Equation explanations\n\n")
		for i, art := range formulaArts {
			result, err := p.explainArtifact(ctx, art, kindFormula, pdfText)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&b, "## Equation image %d\n\n![](data:image/jpeg;base64,%s)\n\n%s\n\n", i, art.Base64, result.Text)
			gallery = append(gallery, GalleryItem{ImagePath: art.Path, Caption: result.Text})
		}
	}

	if mode.explainFigures() && len(figureArts) > 0 {
		b.WriteString("# Figure and table explanations\n\n")
		for i, art := range figureArts {
			result, err := p.explainArtifact(ctx, art, kindFigure, pdfText)
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&b, "## Figure image %d\n\n![](data:image/jpeg;base64,%s)\n\n%s\n\n", i, art.Base64, result.Text)
			gallery = append(gallery, GalleryItem{ImagePath: art.Path, Caption: result.Text})
		}
	}

	return b.String(), gallery, nil
}

// explainArtifact runs the per-region protocol: upload the crop, wait
// for readiness, generate, and release the attachment on every exit
// path.
func (p *pipeline) explainArtifact(ctx context.Context, art layout.RegionArtifact, kind regionKind, pdfText string) (*ExplanationResult, error) {
	start := time.Now()

	displayName := "Figure of paper"
	if kind == kindFormula {
		displayName = "Formula of paper"
	}

	att, err := p.remote.Upload(ctx, art.Path, displayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentUpload, err)
	}
	defer func() {
		if err := p.remote.Release(context.WithoutCancel(ctx), att.Handle); err != nil {
			slog.Warn("explain: releasing attachment failed", "handle", att.Handle, "error", err)
		}
	}()

	if err := llm.WaitReady(ctx, p.remote, att, p.pollInterval, p.pollTimeout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentUpload, err)
	}

	var instruction string
	switch kind {
	case kindFormula:
		instruction = "The image shows a formula from the paper. Explain the equation. " + mathInstruction + " " + p.languageInstruction()
	default:
		instruction = "Explain what the provided paper image conveys. " + p.languageInstruction()
	}

	parts := []llm.Part{
		llm.TextPart("Text extracted from the paper follows:\n" + pdfText),
		llm.TextPart("This is an image extracted from the paper."),
		llm.AttachmentPart(att),
		llm.TextPart(instruction),
	}

	text, err := p.remote.Generate(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExplanationFailed, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty response for %s", ErrExplanationFailed, filepath.Base(art.Path))
	}

	slog.Info("explain: region explained",
		"crop", filepath.Base(art.Path), "kind", displayName,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &ExplanationResult{Artifact: art, Text: text}, nil
}
