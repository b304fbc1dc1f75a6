package layout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"sort"
	"time"
)

// Detector is a client for the remote layout-detection service. It
// submits one page image per call and returns only regions at or above
// the profile threshold; sub-threshold detections are discarded here,
// never exposed to callers.
type Detector struct {
	baseURL string
	client  *http.Client
	// thresholdOverride replaces each profile's threshold when > 0.
	thresholdOverride float64
}

// NewDetector creates a detector client for the service at baseURL.
func NewDetector(baseURL string, thresholdOverride float64) *Detector {
	return &Detector{
		baseURL:           baseURL,
		thresholdOverride: thresholdOverride,
		client: &http.Client{
			// Generous: the service may load model weights on first use.
			Timeout: 120 * time.Second,
		},
	}
}

type detectRequest struct {
	Model          string  `json:"model"`
	ScoreThreshold float64 `json:"score_threshold"`
	ImagePNG       string  `json:"image_png"` // base64
}

type detectResponse struct {
	Regions []struct {
		ClassID int        `json:"class_id"`
		Score   float64    `json:"score"`
		Box     [4]float64 `json:"box"` // left, top, right, bottom
	} `json:"regions"`
	Error string `json:"error,omitempty"`
}

// Detect runs the profile's model over one page image. Results are
// ordered by vertical then horizontal position so region indices are
// stable for a fixed input.
func (d *Detector) Detect(ctx context.Context, pageIndex int, img image.Image, profile Profile) ([]Region, error) {
	threshold := profile.Threshold
	if d.thresholdOverride > 0 {
		threshold = d.thresholdOverride
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding page %d: %w", pageIndex, err)
	}

	reqBody, err := json.Marshal(detectRequest{
		Model:          profile.Model,
		ScoreThreshold: threshold,
		ImagePNG:       base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/detect", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading detection response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if httpResp.StatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, string(respBody))
		}
		return nil, fmt.Errorf("detection service error %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp detectResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding detection response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, resp.Error)
	}

	regions := make([]Region, 0, len(resp.Regions))
	for _, r := range resp.Regions {
		// The service is asked to filter too, but never trust it.
		if r.Score < threshold {
			continue
		}
		label, ok := profile.LabelMap[r.ClassID]
		if !ok || !profile.keeps(label) {
			continue
		}
		regions = append(regions, Region{
			PageIndex:  pageIndex,
			Label:      label,
			Confidence: r.Score,
			Box:        Box{Left: r.Box[0], Top: r.Box[1], Right: r.Box[2], Bottom: r.Box[3]},
		})
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Box.Top != regions[j].Box.Top {
			return regions[i].Box.Top < regions[j].Box.Top
		}
		return regions[i].Box.Left < regions[j].Box.Left
	})
	return regions, nil
}
