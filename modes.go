package paperochi

import "fmt"

// ProcessingMode selects which region kinds are detected and explained.
type ProcessingMode string

const (
	// ModeAll explains formulas and figures/tables.
	ModeAll ProcessingMode = "all"
	// ModeTextFormula explains formulas only. Figures and tables are
	// still extracted so the summary can attach them.
	ModeTextFormula ProcessingMode = "text_formula"
	// ModeTextOnly skips region detection and explanation entirely.
	ModeTextOnly ProcessingMode = "text_only"
)

// ParseProcessingMode validates a mode token from the driving CLI/UI.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(s) {
	case ModeAll, ModeTextFormula, ModeTextOnly:
		return ProcessingMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// BodyRepresentation is how the document body is handed to the
// summarizing model.
type BodyRepresentation int

const (
	// BodyText submits budgeted extracted text.
	BodyText BodyRepresentation = iota
	// BodyImage submits one attachment per rasterized page and no text.
	BodyImage
)

// Backend selects the inference service the summary goes to.
type Backend int

const (
	// BackendRemote is the remote multimodal service.
	BackendRemote Backend = iota
	// BackendLocal is a locally reachable text-only chat endpoint.
	BackendLocal
)

// BodyMode pairs a body representation with an inference backend. Only
// three combinations are meaningful; ParseBodyMode rejects the rest.
type BodyMode struct {
	Body    BodyRepresentation
	Backend Backend
}

// String returns the wire token for the mode pair.
func (m BodyMode) String() string {
	switch m {
	case BodyMode{BodyText, BackendRemote}:
		return "text-remote"
	case BodyMode{BodyText, BackendLocal}:
		return "text-local"
	case BodyMode{BodyImage, BackendRemote}:
		return "image-remote"
	}
	return "invalid"
}

// ParseBodyMode validates a body-mode token. Unknown combinations get a
// typed error instead of falling through to a default strategy.
func ParseBodyMode(s string) (BodyMode, error) {
	switch s {
	case "text-remote":
		return BodyMode{BodyText, BackendRemote}, nil
	case "text-local":
		return BodyMode{BodyText, BackendLocal}, nil
	case "image-remote":
		return BodyMode{BodyImage, BackendRemote}, nil
	}
	return BodyMode{}, fmt.Errorf("%w: body mode %q", ErrInvalidMode, s)
}

// explainFigures reports whether figure/table regions are explained.
func (m ProcessingMode) explainFigures() bool { return m == ModeAll }

// explainFormulas reports whether formula regions are explained.
func (m ProcessingMode) explainFormulas() bool {
	return m == ModeAll || m == ModeTextFormula
}

// detectRegions reports whether region detection runs at all.
func (m ProcessingMode) detectRegions() bool { return m != ModeTextOnly }
