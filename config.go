package paperochi

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the paper analysis pipeline.
type Config struct {
	// OutputDir is where summary_<name>.md and explanation_<name>.md
	// are written. Defaults to "output" in the working directory.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// WorkspaceDir controls where per-run temp workspaces are created.
	// If empty, the system temp directory is used.
	WorkspaceDir string `json:"workspace_dir" yaml:"workspace_dir"`

	// DBPath is the full path to the SQLite run-history database.
	// If empty, defaults to ~/.paperochi/runs.db.
	DBPath string `json:"db_path" yaml:"db_path"`

	// Remote is the remote multimodal inference backend (summary and
	// region explanations).
	Remote LLMConfig `json:"remote" yaml:"remote"`

	// Local is the local text-only chat backend used by the text-local
	// body mode.
	Local LLMConfig `json:"local" yaml:"local"`

	// Detection configures the layout-detection service.
	Detection DetectionConfig `json:"detection" yaml:"detection"`

	// RemoteTextBudget caps the characters of document text sent to the
	// remote backend. Default 30000.
	RemoteTextBudget int `json:"remote_text_budget" yaml:"remote_text_budget"`

	// LocalTextBudget caps the characters sent to the local backend,
	// which is assumed to have a tighter context. Default 10000.
	LocalTextBudget int `json:"local_text_budget" yaml:"local_text_budget"`

	// StopMarker is the heading that introduces the bibliography; text
	// is cut before its first occurrence prior to length budgeting.
	// Default "References".
	StopMarker string `json:"stop_marker" yaml:"stop_marker"`

	// TargetLanguage is the natural language the generated explanations
	// and summary are requested in. Default "the document's language".
	TargetLanguage string `json:"target_language" yaml:"target_language"`

	// RasterDPI is the fixed page rendering resolution. Default 150.
	RasterDPI int `json:"raster_dpi" yaml:"raster_dpi"`
}

// LLMConfig configures a single inference backend endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, lmstudio, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DetectionConfig configures the layout-detection service.
type DetectionConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// ScoreThreshold overrides the per-profile confidence threshold
	// when non-zero.
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
}

// DefaultConfig returns a Config with the defaults the original
// workflow assumes: Gemini for multimodal work, LM Studio locally.
func DefaultConfig() Config {
	return Config{
		OutputDir: "output",
		Remote: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash-latest",
		},
		Local: LLMConfig{
			Provider: "lmstudio",
			Model:    "Mistral/mixtral-8x7b-instruct-v0.1",
			BaseURL:  "http://localhost:1234",
		},
		Detection: DetectionConfig{
			BaseURL: "http://localhost:8866",
		},
		RemoteTextBudget: 30000,
		LocalTextBudget:  10000,
		StopMarker:       "References",
		RasterDPI:        150,
	}
}

// resolveDBPath computes the run-history database path.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "runs.db" // fallback to cwd
	}
	return filepath.Join(home, ".paperochi", "runs.db")
}
