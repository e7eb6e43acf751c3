// Package llm provides the client for the local inference daemon.
package llm

import (
	"context"
	"io"

	"github.com/goccy/go-json"
)

// ChatMessage represents a chat message forwarded to the daemon.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ModelInfo describes an installed model as reported by /api/tags.
type ModelInfo struct {
	Name       string          `json:"name"`
	Model      string          `json:"model,omitempty"`
	ModifiedAt string          `json:"modified_at,omitempty"`
	Size       int64           `json:"size"`
	Digest     string          `json:"digest,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// Result is the outcome of an administrative call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResult reports daemon connectivity.
type HealthResult struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// ModelsResult lists installed models.
type ModelsResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Models  []ModelInfo `json:"models"`
	Count   int         `json:"count"`
}

// ChatResult is the outcome of a chat call. In streaming mode Body is the
// still-open response body and the caller must close it.
type ChatResult struct {
	Success bool
	Message string
	Stream  bool
	Content string
	Body    io.ReadCloser
}

// Client is the interface to the inference daemon. No method returns an
// error: every failure is reported through the result's success flag.
type Client interface {
	// CheckConnection probes the daemon.
	CheckConnection(ctx context.Context) *HealthResult

	// ListModels returns the installed models.
	ListModels(ctx context.Context) *ModelsResult

	// Chat sends a chat request, buffered or streaming.
	Chat(ctx context.Context, req *ChatRequest) *ChatResult

	// PullModel downloads a model and waits for completion.
	PullModel(ctx context.Context, name string) *Result

	// DeleteModel removes an installed model.
	DeleteModel(ctx context.Context, name string) *Result
}
