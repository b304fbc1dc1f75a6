// Command paperochi analyzes one scholarly paper and writes an
// Ochiai-method summary plus per-region explanations to the output
// directory.
//
// Usage:
//
//	paperochi --id 2405.16153
//	paperochi --pdf ./paper.pdf --mode text_formula --body text-local
//	paperochi --history 10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bbiangul/paperochi"
)

func main() {
	var (
		identifier  = flag.String("id", "", "arXiv identifier or URL")
		pdfPath     = flag.String("pdf", "", "Path to a local PDF (takes precedence over --id)")
		mode        = flag.String("mode", "all", "Processing mode: all, text_formula, text_only")
		body        = flag.String("body", "text-remote", "Summary body mode: text-remote, text-local, image-remote")
		configPath  = flag.String("config", "", "Path to config file (JSON)")
		outputDir   = flag.String("out", "", "Output directory (overrides config)")
		language    = flag.String("language", "", "Target language for generated text")
		historyRows = flag.Int("history", 0, "Print the N most recent runs and exit")
	)
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// API keys commonly live in a local .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}

	cfg := paperochi.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("PAPEROCHI_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PAPEROCHI_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("PAPEROCHI_REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("PAPEROCHI_REMOTE_MODEL"); v != "" {
		cfg.Remote.Model = v
	}
	if v := os.Getenv("PAPEROCHI_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("PAPEROCHI_LOCAL_BASE_URL"); v != "" {
		cfg.Local.BaseURL = v
	}
	if v := os.Getenv("PAPEROCHI_LOCAL_MODEL"); v != "" {
		cfg.Local.Model = v
	}
	if v := os.Getenv("PAPEROCHI_DETECTION_URL"); v != "" {
		cfg.Detection.BaseURL = v
	}

	// Fallback: the well-known provider env var.
	if cfg.Remote.APIKey == "" && cfg.Remote.Provider == "gemini" {
		cfg.Remote.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *language != "" {
		cfg.TargetLanguage = *language
	}

	pipeline, err := paperochi.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *historyRows > 0 {
		printHistory(ctx, pipeline, *historyRows)
		return
	}

	if *identifier == "" && *pdfPath == "" {
		fmt.Fprintln(os.Stderr, "either --id or --pdf is required")
		flag.Usage()
		os.Exit(2)
	}

	procMode, err := paperochi.ParseProcessingMode(*mode)
	if err != nil {
		slog.Error("invalid mode", "error", err)
		os.Exit(2)
	}
	bodyMode, err := paperochi.ParseBodyMode(*body)
	if err != nil {
		slog.Error("invalid body mode", "error", err)
		os.Exit(2)
	}

	result, err := pipeline.Run(ctx, paperochi.Request{
		Identifier: *identifier,
		PDFPath:    *pdfPath,
		Mode:       procMode,
		Body:       bodyMode,
	})
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Title:       %s\n", result.Title)
	fmt.Printf("Summary:     %s\n", result.SummaryFile)
	if result.ExplanationFile != "" {
		fmt.Printf("Explanation: %s\n", result.ExplanationFile)
	}
	fmt.Printf("Gallery:     %d explained regions\n", len(result.Gallery))
}

func printHistory(ctx context.Context, p paperochi.Pipeline, limit int) {
	runs, err := p.History(ctx, limit)
	if err != nil {
		slog.Error("listing runs", "error", err)
		os.Exit(1)
	}
	for _, run := range runs {
		status := run.Status
		if run.Error != "" {
			status = fmt.Sprintf("%s (%s)", status, run.Error)
		}
		fmt.Printf("%-5d %-20s %-12s %-12s %s\n",
			run.ID, run.CreatedAt, run.ProcessingMode, status, run.Identifier)
	}
}
