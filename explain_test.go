package paperochi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bbiangul/paperochi/layout"
	"github.com/bbiangul/paperochi/llm"
)

func explainPipeline(remote *fakeRemote) *pipeline {
	return &pipeline{
		cfg:          Config{StopMarker: "References", RemoteTextBudget: 30000},
		remote:       remote,
		pollInterval: time.Millisecond,
		pollTimeout:  time.Second,
	}
}

func regionArtifact(kind layout.Label, path string) layout.RegionArtifact {
	return layout.RegionArtifact{
		Region: layout.Region{Label: kind, Confidence: 0.9},
		Path:   path,
		Base64: "aGVsbG8=",
	}
}

func TestExplainAllBuildsReport(t *testing.T) {
	remote := &fakeRemote{genFunc: func(parts []llm.Part) (string, error) {
		for _, part := range parts {
			if strings.Contains(part.Text, "formula") {
				return "formula explained", nil
			}
		}
		return "figure explained", nil
	}}
	p := explainPipeline(remote)

	formulas := []layout.RegionArtifact{
		regionArtifact(layout.LabelEquation, "page_0_block_0.jpg"),
		regionArtifact(layout.LabelEquation, "page_1_block_0.jpg"),
	}
	figures := []layout.RegionArtifact{
		regionArtifact(layout.LabelFigure, "page_2_block_0.jpg"),
	}

	report, gallery, err := p.explainAll(context.Background(), ModeAll, formulas, figures, "pdf text")
	if err != nil {
		t.Fatalf("explainAll: %v", err)
	}

	if !strings.Contains(report, "# Equation explanations") {
		t.Error("equation section heading missing")
	}
	if !strings.Contains(report, "# Figure and table explanations") {
		t.Error("figure section heading missing")
	}
	for _, heading := range []string{"## Equation image 0", "## Equation image 1", "## Figure image 0"} {
		if !strings.Contains(report, heading) {
			t.Errorf("report missing %q", heading)
		}
	}
	if !strings.Contains(report, "data:image/jpeg;base64,aGVsbG8=") {
		t.Error("inline crop image missing from report")
	}
	if len(gallery) != 3 {
		t.Errorf("gallery = %d items, want 3", len(gallery))
	}

	// One upload and one release per explained region.
	if len(remote.uploads) != 3 || len(remote.releases) != 3 {
		t.Errorf("uploads/releases = %d/%d, want 3/3", len(remote.uploads), len(remote.releases))
	}
}

func TestExplainAllSkipsFiguresInFormulaMode(t *testing.T) {
	remote := &fakeRemote{}
	p := explainPipeline(remote)

	figures := []layout.RegionArtifact{regionArtifact(layout.LabelFigure, "f.jpg")}
	report, gallery, err := p.explainAll(context.Background(), ModeTextFormula, nil, figures, "pdf text")
	if err != nil {
		t.Fatalf("explainAll: %v", err)
	}
	if report != "" {
		t.Errorf("report = %q, want empty", report)
	}
	if len(gallery) != 0 {
		t.Error("gallery populated for unexplained figures")
	}
	if len(remote.uploads) != 0 {
		t.Error("figures uploaded in formula-only mode")
	}
}

func TestExplainAllNoRegions(t *testing.T) {
	p := explainPipeline(&fakeRemote{})
	report, gallery, err := p.explainAll(context.Background(), ModeAll, nil, nil, "pdf text")
	if err != nil {
		t.Fatalf("explainAll: %v", err)
	}
	if report != "" || len(gallery) != 0 {
		t.Error("empty inputs must yield an empty report")
	}
}

func TestExplainArtifactPartOrder(t *testing.T) {
	remote := &fakeRemote{genFunc: func(_ []llm.Part) (string, error) { return "explained", nil }}
	p := explainPipeline(remote)

	res, err := p.explainArtifact(context.Background(), regionArtifact(layout.LabelEquation, "eq.jpg"), kindFormula, "pdf text here")
	if err != nil {
		t.Fatalf("explainArtifact: %v", err)
	}
	if res.Text != "explained" {
		t.Errorf("text = %q", res.Text)
	}

	parts := remote.genCalls[0]
	if len(parts) != 4 {
		t.Fatalf("parts = %d, want 4", len(parts))
	}
	if !strings.Contains(parts[0].Text, "pdf text here") {
		t.Error("document text not submitted first")
	}
	if parts[2].Attachment == nil {
		t.Error("attachment not in third position")
	}
	if !strings.Contains(parts[3].Text, "Explain the equation") {
		t.Errorf("formula instruction missing, got %q", parts[3].Text)
	}
	if remote.genCalls[0][2].Attachment.DisplayName != "Formula of paper" {
		t.Errorf("display name = %q", parts[2].Attachment.DisplayName)
	}
}

func TestExplainArtifactGenerateFailureReleases(t *testing.T) {
	remote := &fakeRemote{genFunc: func(_ []llm.Part) (string, error) {
		return "", errors.New("backend overloaded")
	}}
	p := explainPipeline(remote)

	_, err := p.explainArtifact(context.Background(), regionArtifact(layout.LabelFigure, "f.jpg"), kindFigure, "text")
	if !errors.Is(err, ErrExplanationFailed) {
		t.Fatalf("err = %v, want ErrExplanationFailed", err)
	}
	if len(remote.releases) != 1 {
		t.Errorf("releases = %d, want 1 after generation failure", len(remote.releases))
	}
}

func TestExplainArtifactEmptyResponse(t *testing.T) {
	remote := &fakeRemote{genFunc: func(_ []llm.Part) (string, error) { return "", nil }}
	p := explainPipeline(remote)

	_, err := p.explainArtifact(context.Background(), regionArtifact(layout.LabelFigure, "f.jpg"), kindFigure, "text")
	if !errors.Is(err, ErrExplanationFailed) {
		t.Fatalf("err = %v, want ErrExplanationFailed", err)
	}
}

func TestExplainAllAbortsOnFirstFailure(t *testing.T) {
	calls := 0
	remote := &fakeRemote{genFunc: func(_ []llm.Part) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("backend overloaded")
		}
		return "ok", nil
	}}
	p := explainPipeline(remote)

	formulas := []layout.RegionArtifact{
		regionArtifact(layout.LabelEquation, "a.jpg"),
		regionArtifact(layout.LabelEquation, "b.jpg"),
		regionArtifact(layout.LabelEquation, "c.jpg"),
	}
	_, _, err := p.explainAll(context.Background(), ModeAll, formulas, nil, "text")
	if !errors.Is(err, ErrExplanationFailed) {
		t.Fatalf("err = %v, want ErrExplanationFailed", err)
	}
	if calls != 2 {
		t.Errorf("generate calls = %d, want abort after the failing region", calls)
	}
}
