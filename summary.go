package paperochi

import (
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bbiangul/paperochi/budget"
	"github.com/bbiangul/paperochi/layout"
	"github.com/bbiangul/paperochi/llm"
)

// ochiaiTemplate is the fixed seven-section output format the model is
// instructed to fill (Ochiai method), plus the bibliographic line.
const ochiaiTemplate = `# {Paper title}

date: {YYYY-MM-DD}
categories: {paper categories}

## 1. What is it?
## 2. What makes it stand out from prior work?
## 3. Where is the core of the technique?
## 4. How was it validated?
## 5. Are there open discussions?
## 6. Which papers should be read next?
## 7. Anticipated questions and answers
## Paper information and links
- [Authors, "Title," journal volume no., pages, year](paper link)
`

// keyVisualSection is appended to the template when region attachments
// accompany the request, asking the model to nominate one image.
const keyVisualSection = `## Key visual
{image name}
`

const mathInstruction = "Write any mathematics as MathJax-compatible LaTeX wrapped in $$ so it renders inside markdown."

// languageInstruction names the natural language the output must use.
func (p *pipeline) languageInstruction() string {
	lang := p.cfg.TargetLanguage
	if lang == "" {
		lang = "the same language as the paper"
	}
	return fmt.Sprintf("Write the explanation as plain markdown, in %s. Do not wrap the markdown in code fences.", lang)
}

// summarize produces exactly one summary for the document using the
// strategy selected by the body mode. A generation error or empty
// response is a summary failure; there is no retry.
func (p *pipeline) summarize(ctx context.Context, doc *document, body BodyMode, artifacts []layout.RegionArtifact) (string, error) {
	start := time.Now()
	var (
		text string
		err  error
	)
	switch body {
	case BodyMode{BodyText, BackendRemote}:
		text, err = p.summarizeTextRemote(ctx, doc, artifacts)
	case BodyMode{BodyImage, BackendRemote}:
		text, err = p.summarizeImageRemote(ctx, doc)
	case BodyMode{BodyText, BackendLocal}:
		text, err = p.summarizeTextLocal(ctx, doc)
	default:
		return "", fmt.Errorf("%w: body mode %s", ErrInvalidMode, body.String())
	}

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummaryFailed, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrSummaryFailed)
	}

	slog.Info("pipeline: summary generated",
		"strategy", body.String(), "chars", len(text),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return text, nil
}

// summarizeTextRemote budgets the document text, attaches every region
// crop, and asks for the template plus a key-visual nomination.
func (p *pipeline) summarizeTextRemote(ctx context.Context, doc *document, artifacts []layout.RegionArtifact) (string, error) {
	text := budget.New(p.cfg.StopMarker, p.cfg.RemoteTextBudget).Apply(doc.text)
	slog.Info("summary: text budgeted", "chars", len(text), "est_tokens", budget.EstimateTokens(text))

	attachments, release, err := p.uploadArtifacts(ctx, artifacts)
	if err != nil {
		return "", err
	}
	defer release()

	parts := []llm.Part{
		llm.TextPart("Explain the provided paper following this exact format:\n\n" + ochiaiTemplate + keyVisualSection),
		llm.TextPart("Paper: " + doc.identifier),
		llm.TextPart(fmt.Sprintf("The paper content follows.\n\n---\n%s\n---\nBelow are figure, table, and formula images extracted from the paper. Use them where helpful, select one as the paper's key visual, and cite it by image name.", text)),
	}
	for _, att := range attachments {
		parts = append(parts,
			llm.TextPart("Image name: "+att.DisplayName),
			llm.AttachmentPart(att))
	}
	parts = append(parts, llm.TextPart(mathInstruction+" "+p.languageInstruction()))

	return p.remote.Generate(ctx, parts)
}

// summarizeImageRemote submits one attachment per rasterized page and
// no document text. Used when the target capability enforces strict
// text-length limits.
func (p *pipeline) summarizeImageRemote(ctx context.Context, doc *document) (string, error) {
	paths := make([]string, 0, len(doc.pages))
	for _, page := range doc.pages {
		path := filepath.Join(doc.workspace, fmt.Sprintf("page_%d.jpg", page.Index))
		f, err := os.Create(path)
		if err != nil {
			return "", fmt.Errorf("persisting page %d: %w", page.Index, err)
		}
		err = jpeg.Encode(f, page.Image, &jpeg.Options{Quality: 95})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", fmt.Errorf("encoding page %d: %w", page.Index, err)
		}
		paths = append(paths, path)
	}

	attachments, release, err := p.uploadPaths(ctx, paths)
	if err != nil {
		return "", err
	}
	defer release()

	parts := []llm.Part{
		llm.TextPart("Explain the provided paper, given as page images, following this exact format:\n\n" + ochiaiTemplate),
		llm.TextPart("Paper: " + doc.identifier),
	}
	for _, att := range attachments {
		parts = append(parts, llm.AttachmentPart(att))
	}
	parts = append(parts, llm.TextPart(p.languageInstruction()))

	return p.remote.Generate(ctx, parts)
}

// summarizeTextLocal budgets to the tighter local limit and issues a
// single system+user chat turn. No attachment upload is involved.
func (p *pipeline) summarizeTextLocal(ctx context.Context, doc *document) (string, error) {
	text := budget.New(p.cfg.StopMarker, p.cfg.LocalTextBudget).Apply(doc.text)
	slog.Info("summary: text budgeted for local backend",
		"chars", len(text), "est_tokens", budget.EstimateTokens(text))

	resp, err := p.local.Chat(ctx, llm.ChatRequest{
		Temperature: 0.7,
		Messages: []llm.Message{
			{
				Role:    "system",
				Content: "You are an excellent researcher. Explain the provided paper following this exact format:\n\n" + ochiaiTemplate,
			},
			{
				Role: "user",
				Content: fmt.Sprintf("Paper: %s\nThe paper content follows.\n\n---\n%s\n---\n%s",
					doc.identifier, text, p.languageInstruction()),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// uploadArtifacts uploads region crops as remote attachments and waits
// for each to become ready. The returned release func deletes every
// uploaded attachment and must run on all exit paths, including
// generation failure.
func (p *pipeline) uploadArtifacts(ctx context.Context, artifacts []layout.RegionArtifact) ([]*llm.Attachment, func(), error) {
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path
	}
	return p.uploadPaths(ctx, paths)
}

func (p *pipeline) uploadPaths(ctx context.Context, paths []string) ([]*llm.Attachment, func(), error) {
	var attachments []*llm.Attachment
	release := func() {
		for _, att := range attachments {
			// Release must not inherit a canceled request context.
			if err := p.remote.Release(context.WithoutCancel(ctx), att.Handle); err != nil {
				slog.Warn("summary: releasing attachment failed", "handle", att.Handle, "error", err)
			}
		}
	}

	for _, path := range paths {
		att, err := p.remote.Upload(ctx, path, filepath.Base(path))
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("%w: %v", ErrAttachmentUpload, err)
		}
		attachments = append(attachments, att)
		if err := llm.WaitReady(ctx, p.remote, att, p.pollInterval, p.pollTimeout); err != nil {
			release()
			return nil, nil, fmt.Errorf("%w: %v", ErrAttachmentUpload, err)
		}
	}
	return attachments, release, nil
}
