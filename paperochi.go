// Package paperochi analyzes scholarly PDFs and generates structured
// natural-language explanations: an Ochiai-method summary of the whole
// document and a per-region report for detected figures, tables, and
// formulas.
package paperochi

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bbiangul/paperochi/arxiv"
	"github.com/bbiangul/paperochi/budget"
	"github.com/bbiangul/paperochi/layout"
	"github.com/bbiangul/paperochi/llm"
	"github.com/bbiangul/paperochi/parser"
	"github.com/bbiangul/paperochi/raster"
	"github.com/bbiangul/paperochi/store"
)

// Pipeline is the main entry point for the paper analysis pipeline.
type Pipeline interface {
	// Run processes one paper end to end and returns the generated
	// artifacts. A stage failure aborts the run; there is no
	// mid-pipeline resume.
	Run(ctx context.Context, req Request) (*Result, error)

	// History returns the most recent recorded runs, newest first.
	History(ctx context.Context, limit int) ([]store.Run, error)

	// Close cleanly shuts down the pipeline.
	Close() error
}

// Request identifies one paper and how to process it.
type Request struct {
	// Identifier is an arXiv id or URL, used when PDFPath is empty.
	Identifier string
	// PDFPath is a local PDF; it takes precedence over Identifier.
	PDFPath string
	// Mode selects which region kinds are explained.
	Mode ProcessingMode
	// Body selects the summary strategy.
	Body BodyMode
}

// GalleryItem pairs a region crop with its generated explanation, for
// the driving UI.
type GalleryItem struct {
	ImagePath string
	Caption   string
}

// Result carries everything a run produced.
type Result struct {
	Title   string
	PDFPath string
	// Summary is the Ochiai-method markdown.
	Summary string
	// Explanation is the aggregated per-region report; empty when no
	// regions were explained.
	Explanation string
	Gallery     []GalleryItem
	// Text is the budgeted document text shown back to the driver.
	Text string
	// SummaryFile and ExplanationFile are the persisted artifacts.
	// ExplanationFile is empty when the report is.
	SummaryFile     string
	ExplanationFile string
}

// Collaborator seams, satisfied by the concrete packages and by test
// fakes.

type resolver interface {
	Resolve(ctx context.Context, identifier string) (*arxiv.Paper, error)
	Download(ctx context.Context, paper *arxiv.Paper, dir string) (string, error)
}

type rasterizer interface {
	Render(ctx context.Context, path string) ([]raster.Page, error)
}

type detector interface {
	Detect(ctx context.Context, pageIndex int, img image.Image, profile layout.Profile) ([]layout.Region, error)
}

// pipeline is the concrete implementation of Pipeline.
type pipeline struct {
	cfg      Config
	resolver resolver
	raster   rasterizer
	detector detector
	// extractText is parser.ExtractText, injectable for tests.
	extractText func(ctx context.Context, path string) (string, error)
	remote      llm.MultimodalProvider
	local       llm.Provider
	runs        *store.Store

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// New creates a Pipeline with the given configuration. The inference
// client configuration is constructed once here and threaded through;
// nothing reads it as ambient state afterwards.
func New(cfg Config) (Pipeline, error) {
	if cfg.RemoteTextBudget == 0 {
		cfg.RemoteTextBudget = 30000
	}
	if cfg.LocalTextBudget == 0 {
		cfg.LocalTextBudget = 10000
	}
	if cfg.StopMarker == "" {
		cfg.StopMarker = "References"
	}
	if cfg.RasterDPI == 0 {
		cfg.RasterDPI = 150
	}

	remote, err := llm.NewMultimodal(llm.Config{
		Provider: cfg.Remote.Provider,
		Model:    cfg.Remote.Model,
		BaseURL:  cfg.Remote.BaseURL,
		APIKey:   cfg.Remote.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating remote provider: %w", err)
	}

	local, err := llm.NewProvider(llm.Config{
		Provider: cfg.Local.Provider,
		Model:    cfg.Local.Model,
		BaseURL:  cfg.Local.BaseURL,
		APIKey:   cfg.Local.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local provider: %w", err)
	}

	runs, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	return &pipeline{
		cfg:          cfg,
		resolver:     arxiv.NewResolver(""),
		raster:       raster.New(float64(cfg.RasterDPI)),
		detector:     layout.NewDetector(cfg.Detection.BaseURL, cfg.Detection.ScoreThreshold),
		extractText:  parser.ExtractText,
		remote:       remote,
		local:        local,
		runs:         runs,
		pollInterval: 5 * time.Second,
		pollTimeout:  2 * time.Minute,
	}, nil
}

// Run drives the per-document state machine:
// Loaded -> Rasterized -> (RegionsDetected)? -> TextExtracted ->
// Summarized -> (Explained)? -> Finished.
func (p *pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if _, err := ParseProcessingMode(string(req.Mode)); err != nil {
		return nil, err
	}
	if req.Body.String() == "invalid" {
		return nil, fmt.Errorf("%w: body mode", ErrInvalidMode)
	}

	workspace, err := os.MkdirTemp(p.cfg.WorkspaceDir, "paperochi-"+time.Now().Format("20060102_150405")+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	// --- Loaded ---
	pdfPath, title, shortName, err := p.load(ctx, req, workspace)
	if err != nil {
		return nil, err
	}
	slog.Info("pipeline: loaded document",
		"pdf", pdfPath, "title", title, "mode", req.Mode, "body", req.Body.String())

	runID := p.recordStart(ctx, req, title, pdfPath)
	fail := func(stageErr error) (*Result, error) {
		p.recordFailure(ctx, runID, stageErr)
		return nil, stageErr
	}

	// --- Rasterized ---
	pages, err := p.raster.Render(ctx, pdfPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrDocumentUnreadable, err))
	}

	// --- RegionsDetected (skipped in text-only mode) ---
	var formulaArts, figureArts []layout.RegionArtifact
	if req.Mode.detectRegions() {
		formulaArts, figureArts, err = p.detectRegions(ctx, req.Mode, pages, workspace)
		if err != nil {
			return fail(err)
		}
	}

	// --- TextExtracted ---
	text, err := p.extractText(ctx, pdfPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrDocumentUnreadable, err))
	}
	remoteBudget := budget.New(p.cfg.StopMarker, p.cfg.RemoteTextBudget)
	budgeted := remoteBudget.Apply(text)
	slog.Info("pipeline: text extracted",
		"chars", len(text), "budgeted_chars", len(budgeted),
		"est_tokens", budget.EstimateTokens(budgeted))

	doc := &document{
		identifier: req.Identifier,
		title:      title,
		shortName:  shortName,
		pdfPath:    pdfPath,
		workspace:  workspace,
		pages:      pages,
		text:       text,
	}

	// --- Summarized ---
	summary, err := p.summarize(ctx, doc, req.Body, append(append([]layout.RegionArtifact{}, figureArts...), formulaArts...))
	if err != nil {
		return fail(err)
	}

	// --- Explained (skipped in text-only mode) ---
	var report string
	var gallery []GalleryItem
	if req.Mode.detectRegions() {
		report, gallery, err = p.explainAll(ctx, req.Mode, formulaArts, figureArts, budgeted)
		if err != nil {
			return fail(err)
		}
	}

	// --- Finished ---
	summaryFile, explanationFile, err := p.persist(shortName, summary, report)
	if err != nil {
		return fail(err)
	}

	p.recordSuccess(ctx, runID, len(pages), len(formulaArts)+len(figureArts), summaryFile, explanationFile)
	slog.Info("pipeline: run finished",
		"summary", summaryFile, "explanation", explanationFile,
		"pages", len(pages), "regions", len(formulaArts)+len(figureArts))

	return &Result{
		Title:           title,
		PDFPath:         pdfPath,
		Summary:         summary,
		Explanation:     report,
		Gallery:         gallery,
		Text:            budgeted,
		SummaryFile:     summaryFile,
		ExplanationFile: explanationFile,
	}, nil
}

// document bundles the per-run immutable inputs the orchestrators need.
type document struct {
	identifier string
	title      string
	shortName  string
	pdfPath    string
	workspace  string
	pages      []raster.Page
	text       string
}

// load resolves the request to a local PDF, a display title, and the
// short name used for output files.
func (p *pipeline) load(ctx context.Context, req Request, workspace string) (pdfPath, title, shortName string, err error) {
	if req.PDFPath != "" {
		base := filepath.Base(req.PDFPath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if _, err := os.Stat(req.PDFPath); err != nil {
			return "", "", "", fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
		}
		return req.PDFPath, stem, stem, nil
	}

	paper, err := p.resolver.Resolve(ctx, req.Identifier)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrPaperNotFound, err)
	}
	path, err := p.resolver.Download(ctx, paper, workspace)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrPaperNotFound, err)
	}
	return path, paper.Title, paper.ID, nil
}

// detectRegions runs both detection profiles page by page, in page
// order, and crops retained regions. Figures/tables are extracted in
// every non-text-only mode (the summary attaches them even when they
// are not explained); formulas only when a formula-explaining mode is
// selected.
func (p *pipeline) detectRegions(ctx context.Context, mode ProcessingMode, pages []raster.Page, workspace string) (formulaArts, figureArts []layout.RegionArtifact, err error) {
	profiles := []struct {
		profile layout.Profile
		subdir  string
		out     *[]layout.RegionArtifact
		enabled bool
	}{
		{layout.FormulaProfile(), "formula", &formulaArts, mode.explainFormulas()},
		{layout.FigureTableProfile(), "figure", &figureArts, true},
	}

	for _, pr := range profiles {
		if !pr.enabled {
			continue
		}
		// Crop names repeat per page across profiles, so each profile
		// gets its own directory.
		extractor, err := layout.NewExtractor(filepath.Join(workspace, pr.subdir))
		if err != nil {
			return nil, nil, err
		}
		start := time.Now()
		count := 0
		for _, page := range pages {
			regions, err := p.detector.Detect(ctx, page.Index, page.Image, pr.profile)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
			}
			arts, err := extractor.Extract(page.Image, regions, pr.profile.Pad)
			if err != nil {
				return nil, nil, err
			}
			*pr.out = append(*pr.out, arts...)
			count += len(arts)
		}
		slog.Info("pipeline: regions detected",
			"model", pr.profile.Model, "regions", count,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	return formulaArts, figureArts, nil
}

// persist writes the two output documents. The explanation file is
// omitted when the report is empty.
func (p *pipeline) persist(shortName, summary, report string) (summaryFile, explanationFile string, err error) {
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating output dir: %w", err)
	}

	summaryFile = filepath.Join(p.cfg.OutputDir, "summary_"+shortName+".md")
	if err := os.WriteFile(summaryFile, []byte(summary), 0o644); err != nil {
		return "", "", fmt.Errorf("writing summary: %w", err)
	}

	if report != "" {
		explanationFile = filepath.Join(p.cfg.OutputDir, "explanation_"+shortName+".md")
		if err := os.WriteFile(explanationFile, []byte(report), 0o644); err != nil {
			return "", "", fmt.Errorf("writing explanation report: %w", err)
		}
	}
	return summaryFile, explanationFile, nil
}

// Run-history recording is best-effort: a store problem never fails
// the run itself.

func (p *pipeline) recordStart(ctx context.Context, req Request, title, pdfPath string) int64 {
	if p.runs == nil {
		return 0
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.PDFPath
	}
	id, err := p.runs.InsertRun(ctx, store.Run{
		Identifier:     identifier,
		Title:          title,
		PDFPath:        pdfPath,
		ProcessingMode: string(req.Mode),
		BodyMode:       req.Body.String(),
	})
	if err != nil {
		slog.Warn("pipeline: recording run start failed", "error", err)
		return 0
	}
	return id
}

func (p *pipeline) recordSuccess(ctx context.Context, runID int64, pages, regions int, summaryFile, explanationFile string) {
	if p.runs == nil || runID == 0 {
		return
	}
	if err := p.runs.CompleteRun(ctx, runID, pages, regions, summaryFile, explanationFile); err != nil {
		slog.Warn("pipeline: recording run completion failed", "error", err)
	}
}

func (p *pipeline) recordFailure(ctx context.Context, runID int64, runErr error) {
	if p.runs == nil || runID == 0 {
		return
	}
	if err := p.runs.FailRun(ctx, runID, runErr); err != nil {
		slog.Warn("pipeline: recording run failure failed", "error", err)
	}
}

// History returns recent recorded runs.
func (p *pipeline) History(ctx context.Context, limit int) ([]store.Run, error) {
	if p.runs == nil {
		return nil, nil
	}
	return p.runs.ListRuns(ctx, limit)
}

// Close shuts down the pipeline.
func (p *pipeline) Close() error {
	if p.runs != nil {
		return p.runs.Close()
	}
	return nil
}
