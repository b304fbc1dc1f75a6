package budget

import (
	"strings"
	"testing"
)

func TestApplyStopMarker(t *testing.T) {
	b := New("References", 30000)
	got := b.Apply("body text\n\nReferences\n[1] something")
	if got != "body text\n\n" {
		t.Errorf("Apply = %q, want text before marker", got)
	}
}

func TestApplyMarkerAbsent(t *testing.T) {
	b := New("References", 100)
	in := "short text with no bibliography"
	if got := b.Apply(in); got != in {
		t.Errorf("Apply = %q, want unchanged input", got)
	}
}

func TestApplyHardLimit(t *testing.T) {
	b := New("References", 10)
	got := b.Apply(strings.Repeat("a", 50))
	if len(got) != 10 {
		t.Errorf("len(Apply) = %d, want 10", len(got))
	}
}

// A marker followed by far more than the budget must both stop at the
// marker and respect the hard limit.
func TestApplyMarkerThenLimit(t *testing.T) {
	b := New("References", 30000)
	in := strings.Repeat("word ", 100) + "References" + strings.Repeat("x", 40000)
	got := b.Apply(in)
	if strings.Contains(got, "References") {
		t.Error("output contains the stop marker")
	}
	if strings.Contains(got, "x") {
		t.Error("output contains text after the stop marker")
	}
	if len(got) > 30000 {
		t.Errorf("len = %d, want <= 30000", len(got))
	}
}

func TestApplyIdempotent(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"marker and overflow", strings.Repeat("lorem ipsum ", 5000) + "References tail"},
		{"plain overflow", strings.Repeat("b", 40000)},
		{"short", "abstract only"},
	}

	b := New("References", 30000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := b.Apply(tt.in)
			twice := b.Apply(once)
			if once != twice {
				t.Error("budgeting already-budgeted text changed it")
			}
		})
	}
}

func TestApplyDisabledLimit(t *testing.T) {
	b := New("", 0)
	in := strings.Repeat("c", 40000)
	if got := b.Apply(in); got != in {
		t.Error("zero budget should leave text unchanged")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 2},                // ceil(1*1.3)
		{"one two three four", 6}, // ceil(4*1.3)
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTextBefore(t *testing.T) {
	if got := TextBefore("a References b References c", "References"); got != "a " {
		t.Errorf("TextBefore cut at %q, want first occurrence", got)
	}
	if got := TextBefore("abc", ""); got != "abc" {
		t.Error("empty marker should be a no-op")
	}
}
