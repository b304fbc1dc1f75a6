// Package llm contains the inference backends: a remote multimodal
// service with an asynchronous attachment protocol, and local
// OpenAI-compatible chat endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is the interface for plain text inference.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// MultimodalProvider extends Provider with the remote attachment
// protocol: content is uploaded, becomes ready asynchronously, is
// referenced from generation requests, and must be released when done.
type MultimodalProvider interface {
	Provider

	// Upload submits a local file and returns its attachment handle.
	// The attachment may still be processing on return.
	Upload(ctx context.Context, path, displayName string) (*Attachment, error)

	// Status reports the current state of an uploaded attachment.
	Status(ctx context.Context, handle string) (AttachmentState, error)

	// Generate issues a generation request over ordered text and
	// attachment parts and returns the response text.
	Generate(ctx context.Context, parts []Part) (string, error)

	// Release deletes a remote attachment. Handles are scoped to one
	// pipeline run and must always be released, success or failure.
	Release(ctx context.Context, handle string) error
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// AttachmentState is the readiness of a remote attachment.
type AttachmentState string

const (
	StatePending AttachmentState = "PROCESSING"
	StateReady   AttachmentState = "ACTIVE"
	StateFailed  AttachmentState = "FAILED"
)

// Attachment is an opaque handle to content uploaded to the remote
// service, valid until released.
type Attachment struct {
	Handle      string // service-assigned name, used for status/release
	URI         string // reference usable inside generation requests
	MIMEType    string
	DisplayName string
	State       AttachmentState
}

// Part is one element of a generation request: either text or an
// uploaded attachment, never both.
type Part struct {
	Text       string
	Attachment *Attachment
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// AttachmentPart builds an attachment part.
func AttachmentPart(a *Attachment) Part { return Part{Attachment: a} }

// ErrAttachmentNotReady is returned when an attachment does not become
// ready before the poll deadline, or the service reports it failed.
var ErrAttachmentNotReady = errors.New("llm: attachment not ready")

// WaitReady polls the attachment's state at the given interval until it
// is ready, the deadline passes, or the service reports failure. The
// poll is bounded: an attachment stuck in processing is an upload
// failure, not an indefinite wait.
func WaitReady(ctx context.Context, p MultimodalProvider, att *Attachment, interval, timeout time.Duration) error {
	if att.State == StateReady {
		return nil
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	deadline := time.Now().Add(timeout)
	for {
		state, err := p.Status(ctx, att.Handle)
		if err != nil {
			return fmt.Errorf("polling attachment %s: %w", att.Handle, err)
		}
		att.State = state

		switch state {
		case StateReady:
			return nil
		case StateFailed:
			return fmt.Errorf("%w: %s reported failed", ErrAttachmentNotReady, att.Handle)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s still processing after %s", ErrAttachmentNotReady, att.Handle, timeout)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Config configures an inference backend.
type Config struct {
	Provider string `json:"provider"` // gemini, lmstudio, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// NewProvider creates a chat provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewMultimodal creates a provider supporting the attachment protocol.
// Only backends with an upload capability qualify.
func NewMultimodal(cfg Config) (MultimodalProvider, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	mp, ok := p.(MultimodalProvider)
	if !ok {
		return nil, fmt.Errorf("llm provider %s does not support attachments", cfg.Provider)
	}
	return mp, nil
}
