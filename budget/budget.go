// Package budget trims extracted document text to fit an inference
// backend's context capacity. Truncation is deterministic: the text is
// first cut before the bibliography stop marker, then hard-limited to a
// maximum character count.
package budget

import (
	"math"
	"strings"
)

// Budgeter applies the two-step truncation rule.
type Budgeter struct {
	// StopMarker is a literal string (typically the "References"
	// heading). Everything from its first occurrence onward is dropped
	// before length limiting. Empty disables the cut.
	StopMarker string

	// MaxChars is the hard character limit applied after the marker
	// cut. Zero or negative disables the limit.
	MaxChars int
}

// New returns a Budgeter with the given stop marker and limit.
func New(stopMarker string, maxChars int) *Budgeter {
	return &Budgeter{StopMarker: stopMarker, MaxChars: maxChars}
}

// Apply truncates text per the budget rule. Applying the result again
// returns it unchanged: the marker cut removes the marker itself, and
// the hard limit is a fixed upper bound.
func (b *Budgeter) Apply(text string) string {
	text = TextBefore(text, b.StopMarker)
	if b.MaxChars > 0 && len(text) > b.MaxChars {
		text = text[:b.MaxChars]
	}
	return text
}

// TextBefore returns the portion of text preceding the first literal
// occurrence of marker, or text unchanged when marker is empty or
// absent.
func TextBefore(text, marker string) string {
	if marker == "" {
		return text
	}
	if idx := strings.Index(text, marker); idx >= 0 {
		return text[:idx]
	}
	return text
}

// EstimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3. The estimate is advisory
// and only used for logging; it never gates a request.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}
