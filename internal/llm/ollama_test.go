package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeDaemon(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(srv.URL+"/", 2*time.Second)
}

func TestCheckConnection(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/tags", r.URL.Path)
			_, _ = w.Write([]byte(`{"models":[]}`))
		})
		res := c.CheckConnection(context.Background())
		assert.True(t, res.Connected)
		assert.NotEmpty(t, res.Message)
	})

	t.Run("non-200", func(t *testing.T) {
		c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		res := c.CheckConnection(context.Background())
		assert.False(t, res.Connected)
		assert.Contains(t, res.Message, "500")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := NewOllamaClient(url, time.Second).CheckConnection(context.Background())
		assert.False(t, res.Connected)
		assert.Equal(t, "cannot connect to Ollama server", res.Message)
	})
}

func TestListModels(t *testing.T) {
	c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b","size":42,"details":{"family":"llama"}},{"name":"qwen2:7b","size":7}]}`))
	})

	res := c.ListModels(context.Background())
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "llama3:8b", res.Models[0].Name)
	assert.JSONEq(t, `{"family":"llama"}`, string(res.Models[0].Details))

	t.Run("failure", func(t *testing.T) {
		c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		res := c.ListModels(context.Background())
		assert.False(t, res.Success)
		assert.Equal(t, "error: 503", res.Message)
	})
}

func TestChatBuffered(t *testing.T) {
	c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.Len(t, req.Messages, 1)

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hello there"},"done":true}`))
	})

	res := c.Chat(context.Background(), &ChatRequest{
		Model:    "llama3",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.True(t, res.Success)
	assert.False(t, res.Stream)
	assert.Equal(t, "hello there", res.Content)
	assert.Nil(t, res.Body)
}

func TestChatStreaming(t *testing.T) {
	c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		_, _ = w.Write([]byte("{\"message\":{\"content\":\"a\"},\"done\":false}\n{\"message\":{\"content\":\"b\"},\"done\":true}\n"))
	})

	res := c.Chat(context.Background(), &ChatRequest{Model: "llama3", Stream: true})
	require.True(t, res.Success)
	require.True(t, res.Stream)
	require.NotNil(t, res.Body)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"done":true`)
}

func TestChatNon200(t *testing.T) {
	c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, stream := range []bool{false, true} {
		res := c.Chat(context.Background(), &ChatRequest{Model: "missing", Stream: stream})
		assert.False(t, res.Success)
		assert.Equal(t, "chat error: 404", res.Message)
		assert.Nil(t, res.Body)
	}
}

func TestPullAndDeleteModel(t *testing.T) {
	var seen []string
	c := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen = append(seen, r.Method+" "+r.URL.Path+" "+body["name"].(string))
		if body["name"] == "bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	pull := c.PullModel(context.Background(), "llama3")
	assert.True(t, pull.Success)
	assert.Equal(t, "model 'llama3' pulled", pull.Message)

	del := c.DeleteModel(context.Background(), "llama3")
	assert.True(t, del.Success)
	assert.Equal(t, "model 'llama3' deleted", del.Message)

	failed := c.DeleteModel(context.Background(), "bad")
	assert.False(t, failed.Success)
	assert.Equal(t, "delete failed: 404", failed.Message)

	assert.Equal(t, []string{
		"POST /api/pull llama3",
		"DELETE /api/delete llama3",
		"DELETE /api/delete bad",
	}, seen)
}
