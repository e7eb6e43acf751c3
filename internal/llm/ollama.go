package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/localchat/pkg/metrics"
)

// DefaultTimeout bounds probes and deletes when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// bufferedChatMultiplier scales the base timeout for non-streaming chat calls.
const bufferedChatMultiplier = 10

var tracer = otel.Tracer("localchat/llm")

// OllamaClient talks to an Ollama-compatible daemon over its native /api endpoints.
type OllamaClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOllamaClient creates a new client. The HTTP client carries no timeout of
// its own; every call bounds itself through its context.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// CheckConnection probes GET /api/tags.
func (c *OllamaClient) CheckConnection(ctx context.Context) *HealthResult {
	ctx, span := tracer.Start(ctx, "ollama.check_connection")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		fail(span, "check_connection", err.Error())
		return &HealthResult{Connected: false, Message: "cannot connect to Ollama server"}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("server responded with status %d", resp.StatusCode)
		fail(span, "check_connection", msg)
		return &HealthResult{Connected: false, Message: msg}
	}

	metrics.RecordUpstream("check_connection", true)
	return &HealthResult{Connected: true, Message: "connected to Ollama server"}
}

// ListModels returns the models reported by GET /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) *ModelsResult {
	ctx, span := tracer.Start(ctx, "ollama.list_models")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		msg := "failed to list models: " + err.Error()
		fail(span, "list_models", msg)
		return &ModelsResult{Success: false, Message: msg}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("error: %d", resp.StatusCode)
		fail(span, "list_models", msg)
		return &ModelsResult{Success: false, Message: msg}
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		msg := "failed to list models: " + err.Error()
		fail(span, "list_models", msg)
		return &ModelsResult{Success: false, Message: msg}
	}
	if tags.Models == nil {
		tags.Models = []ModelInfo{}
	}

	span.SetAttributes(attribute.Int("llm.model_count", len(tags.Models)))
	metrics.RecordUpstream("list_models", true)
	return &ModelsResult{Success: true, Models: tags.Models, Count: len(tags.Models)}
}

// Chat sends POST /api/chat. Buffered calls are bounded by ten times the base
// timeout; streaming calls are bounded only by ctx and hand back the open body.
func (c *OllamaClient) Chat(ctx context.Context, req *ChatRequest) *ChatResult {
	ctx, span := tracer.Start(ctx, "ollama.chat", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Bool("llm.stream", req.Stream),
		attribute.Int("llm.messages", len(req.Messages)),
	))
	defer span.End()

	if req.Stream {
		return c.chatStream(ctx, span, req)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout*bufferedChatMultiplier)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", req)
	if err != nil {
		msg := "chat failed: " + err.Error()
		fail(span, "chat", msg)
		return &ChatResult{Success: false, Message: msg}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("chat error: %d", resp.StatusCode)
		fail(span, "chat", msg)
		return &ChatResult{Success: false, Message: msg}
	}

	var body struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		msg := "chat failed: " + err.Error()
		fail(span, "chat", msg)
		return &ChatResult{Success: false, Message: msg}
	}

	metrics.RecordUpstream("chat", true)
	return &ChatResult{Success: true, Stream: false, Content: body.Message.Content}
}

func (c *OllamaClient) chatStream(ctx context.Context, span trace.Span, req *ChatRequest) *ChatResult {
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", req)
	if err != nil {
		msg := "chat failed: " + err.Error()
		fail(span, "chat", msg)
		return &ChatResult{Success: false, Message: msg}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		msg := fmt.Sprintf("chat error: %d", resp.StatusCode)
		fail(span, "chat", msg)
		return &ChatResult{Success: false, Message: msg}
	}

	metrics.RecordUpstream("chat", true)
	return &ChatResult{Success: true, Stream: true, Body: resp.Body}
}

// PullModel sends POST /api/pull and waits for the download to finish. Pulls
// are bounded only by ctx.
func (c *OllamaClient) PullModel(ctx context.Context, name string) *Result {
	ctx, span := tracer.Start(ctx, "ollama.pull_model", trace.WithAttributes(attribute.String("llm.model", name)))
	defer span.End()

	payload := map[string]any{"name": name, "stream": false}
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", payload)
	if err != nil {
		msg := "pull error: " + err.Error()
		fail(span, "pull", msg)
		return &Result{Success: false, Message: msg}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("pull failed: %d", resp.StatusCode)
		fail(span, "pull", msg)
		return &Result{Success: false, Message: msg}
	}

	metrics.RecordUpstream("pull", true)
	return &Result{Success: true, Message: fmt.Sprintf("model '%s' pulled", name)}
}

// DeleteModel sends DELETE /api/delete.
func (c *OllamaClient) DeleteModel(ctx context.Context, name string) *Result {
	ctx, span := tracer.Start(ctx, "ollama.delete_model", trace.WithAttributes(attribute.String("llm.model", name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, "/api/delete", map[string]string{"name": name})
	if err != nil {
		msg := "delete error: " + err.Error()
		fail(span, "delete", msg)
		return &Result{Success: false, Message: msg}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("delete failed: %d", resp.StatusCode)
		fail(span, "delete", msg)
		return &Result{Success: false, Message: msg}
	}

	metrics.RecordUpstream("delete", true)
	return &Result{Success: true, Message: fmt.Sprintf("model '%s' deleted", name)}
}

func (c *OllamaClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func fail(span trace.Span, operation, msg string) {
	span.SetStatus(codes.Error, msg)
	metrics.RecordUpstream(operation, false)
}

var _ Client = (*OllamaClient)(nil)
