package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.InsertRun(ctx, Run{
		Identifier:     "2405.16153",
		Title:          "Some Paper",
		PDFPath:        "/tmp/2405.16153.pdf",
		ProcessingMode: "all",
		BodyMode:       "text-remote",
	})
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	r, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != "running" {
		t.Errorf("status = %q, want running", r.Status)
	}

	if err := s.CompleteRun(ctx, id, 12, 5, "out/summary_x.md", "out/explanation_x.md"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	r, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != "done" || r.Pages != 12 || r.Regions != 5 {
		t.Errorf("run after completion = %+v", r)
	}
	if r.SummaryPath != "out/summary_x.md" || r.ExplanationPath != "out/explanation_x.md" {
		t.Errorf("artifact paths = %q, %q", r.SummaryPath, r.ExplanationPath)
	}
	if r.FinishedAt == "" {
		t.Error("finished_at not set")
	}
}

func TestFailRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.InsertRun(ctx, Run{Identifier: "x", ProcessingMode: "all", BodyMode: "text-remote"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.FailRun(ctx, id, errors.New("document unreadable")); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	r, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != "error" || r.Error != "document unreadable" {
		t.Errorf("run = %+v", r)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.InsertRun(ctx, Run{Identifier: id, ProcessingMode: "all", BodyMode: "text-remote"}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Identifier != "c" || runs[1].Identifier != "b" {
		t.Errorf("order = %s, %s; want c, b", runs[0].Identifier, runs[1].Identifier)
	}
}

func TestClosedStore(t *testing.T) {
	s := testStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.InsertRun(context.Background(), Run{}); !errors.Is(err, ErrClosed) {
		t.Errorf("InsertRun on closed store: %v", err)
	}
	if _, err := s.ListRuns(context.Background(), 5); !errors.Is(err, ErrClosed) {
		t.Errorf("ListRuns on closed store: %v", err)
	}
}
