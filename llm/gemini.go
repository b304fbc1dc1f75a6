package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// geminiProvider implements MultimodalProvider against the native
// Gemini API: the Files endpoint for attachment upload/status/delete
// and generateContent for inference.
//
// Uploads complete asynchronously on the service side; an attachment
// stays PROCESSING until the service has ingested it and must not be
// referenced from a generation request before it turns ACTIVE.
//
// API key: set via config or GEMINI_API_KEY env var.
type geminiProvider struct {
	cfg    Config
	client *http.Client
	// systemInstruction is prepended to every generation request.
	systemInstruction string
}

// NewGemini creates the remote multimodal provider.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return &geminiProvider{
		cfg:               cfg,
		systemInstruction: "You are an excellent researcher.",
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- wire types ---

type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type geminiFileEnvelope struct {
	File geminiFile `json:"file"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"fileData,omitempty"`
}

type geminiFileData struct {
	MIMEType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Upload submits a local file to the Files endpoint. The returned
// attachment may still be PROCESSING; use WaitReady before referencing
// it in Generate.
func (p *geminiProvider) Upload(ctx context.Context, path, displayName string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment source: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	url := p.cfg.BaseURL + "/upload/v1beta/files"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-File-Name", displayName)
	p.auth(req)

	var env geminiFileEnvelope
	if err := p.do(req, &env); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", displayName, err)
	}

	return &Attachment{
		Handle:      env.File.Name,
		URI:         env.File.URI,
		MIMEType:    env.File.MIMEType,
		DisplayName: displayName,
		State:       AttachmentState(env.File.State),
	}, nil
}

// Status fetches the attachment's current readiness.
func (p *geminiProvider) Status(ctx context.Context, handle string) (AttachmentState, error) {
	url := p.cfg.BaseURL + "/v1beta/" + handle
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	p.auth(req)

	var f geminiFile
	if err := p.do(req, &f); err != nil {
		return "", fmt.Errorf("fetching attachment %s: %w", handle, err)
	}
	return AttachmentState(f.State), nil
}

// Generate runs generateContent over ordered text/attachment parts.
func (p *geminiProvider) Generate(ctx context.Context, parts []Part) (string, error) {
	content := geminiContent{Role: "user"}
	for _, part := range parts {
		if part.Attachment != nil {
			content.Parts = append(content.Parts, geminiPart{
				FileData: &geminiFileData{
					MIMEType: part.Attachment.MIMEType,
					FileURI:  part.Attachment.URI,
				},
			})
			continue
		}
		content.Parts = append(content.Parts, geminiPart{Text: part.Text})
	}

	body := geminiGenerateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: p.systemInstruction}}},
		Contents:          []geminiContent{content},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, p.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.auth(req)

	var resp geminiGenerateResponse
	if err := p.do(req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// Release deletes a remote attachment.
func (p *geminiProvider) Release(ctx context.Context, handle string) error {
	url := p.cfg.BaseURL + "/v1beta/" + handle
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}
	p.auth(req)
	if err := p.do(req, nil); err != nil {
		return fmt.Errorf("releasing attachment %s: %w", handle, err)
	}
	return nil
}

// Chat adapts plain chat requests onto generateContent so the same
// backend can serve text-only calls.
func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	parts := make([]Part, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, TextPart(m.Content))
	}
	text, err := p.Generate(ctx, parts)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Content: text, Model: p.cfg.Model}, nil
}

func (p *geminiProvider) auth(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	}
}

// do executes the request and decodes a JSON body into out when out is
// non-nil.
func (p *geminiProvider) do(req *http.Request, out interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini API error %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
