package layout

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1200, 1600))
}

func detectionServer(t *testing.T, resp detectResponse, wantModel string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %s, want /detect", r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if wantModel != "" && req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		if req.ImagePNG == "" {
			t.Error("request carries no image")
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDetectFiltersAndMaps(t *testing.T) {
	resp := detectResponse{}
	resp.Regions = []struct {
		ClassID int        `json:"class_id"`
		Score   float64    `json:"score"`
		Box     [4]float64 `json:"box"`
	}{
		{ClassID: 4, Score: 0.95, Box: [4]float64{10, 300, 200, 400}}, // Figure, kept
		{ClassID: 3, Score: 0.85, Box: [4]float64{10, 100, 200, 200}}, // Table, kept
		{ClassID: 4, Score: 0.50, Box: [4]float64{10, 500, 200, 600}}, // below threshold
		{ClassID: 0, Score: 0.99, Box: [4]float64{10, 700, 200, 800}}, // Text, not retained
		{ClassID: 9, Score: 0.99, Box: [4]float64{10, 900, 200, 950}}, // unmapped class
	}
	srv := detectionServer(t, resp, "lp://PubLayNet/faster_rcnn_R_50_FPN_3x")
	defer srv.Close()

	d := NewDetector(srv.URL, 0)
	regions, err := d.Detect(context.Background(), 2, testPage(), FigureTableProfile())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(regions))
	}
	// Sorted by vertical position: the table sits above the figure.
	if regions[0].Label != LabelTable || regions[1].Label != LabelFigure {
		t.Errorf("labels = %s, %s; want Table, Figure", regions[0].Label, regions[1].Label)
	}
	for _, r := range regions {
		if r.Confidence < 0.8 {
			t.Errorf("sub-threshold region exposed: %+v", r)
		}
		if r.PageIndex != 2 {
			t.Errorf("page index = %d, want 2", r.PageIndex)
		}
	}
}

func TestDetectThresholdOverride(t *testing.T) {
	resp := detectResponse{}
	resp.Regions = []struct {
		ClassID int        `json:"class_id"`
		Score   float64    `json:"score"`
		Box     [4]float64 `json:"box"`
	}{
		{ClassID: 1, Score: 0.6, Box: [4]float64{0, 0, 50, 20}},
	}
	srv := detectionServer(t, resp, "")
	defer srv.Close()

	// Override below the region's score keeps it.
	d := NewDetector(srv.URL, 0.5)
	regions, err := d.Detect(context.Background(), 0, testPage(), FormulaProfile())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(regions) != 1 || regions[0].Label != LabelEquation {
		t.Fatalf("regions = %+v, want one Equation", regions)
	}
}

func TestDetectModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model weights not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewDetector(srv.URL, 0)
	_, err := d.Detect(context.Background(), 0, testPage(), FormulaProfile())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestDetectServiceUnreachable(t *testing.T) {
	d := NewDetector("http://127.0.0.1:1", 0)
	_, err := d.Detect(context.Background(), 0, testPage(), FormulaProfile())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestDetectErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "unknown model"})
	}))
	defer srv.Close()

	d := NewDetector(srv.URL, 0)
	_, err := d.Detect(context.Background(), 0, testPage(), FormulaProfile())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}
