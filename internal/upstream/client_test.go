package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
)

func TestStreamChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hej\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/v1/", "key")
	resp, err := c.StreamChat(context.Background(), ChatRequest{
		Model:       "TEE/DeepSeek-v3.2",
		Messages:    []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		Temperature: 0.7,
		MaxTokens:   4000,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "[DONE]")

	assert.Equal(t, "TEE/DeepSeek-v3.2", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.Equal(t, 0.7, got["temperature"])
	assert.EqualValues(t, 4000, got["max_tokens"])
	assert.Len(t, got["messages"], 2)
	assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "TEE/gemma-3-27b-it", req["model"])
		assert.InDelta(t, 0.1, req["temperature"], 1e-6)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"findings\":[]}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "key")
	out, err := c.Complete(context.Background(), "TEE/gemma-3-27b-it", []Message{{Role: "user", Content: "x"}}, 0.1, 4000)
	require.NoError(t, err)
	assert.Equal(t, `{"findings":[]}`, out)
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		category  apierr.Category
		retryable bool
		code      string
	}{
		{"api error", 503, `{"error":{"message":"overloaded","type":"server_error"}}`, apierr.ServerError, true, ""},
		{"model not found", 400, `{"error":{"message":"no such model","type":"invalid_request_error","code":"model_not_found"}}`, apierr.ModelUnavailable, false, "model_not_found"},
		{"plain body", 502, `bad gateway`, apierr.ServerError, true, ""},
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, apierr.AuthError, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, "key")
			_, err := c.Complete(context.Background(), "m", nil, 0.1, 10)
			require.Error(t, err)
			e, ok := apierr.As(err)
			require.True(t, ok, "got %T %v", err, err)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.retryable, e.Retryable)
			if tt.code != "" {
				require.NotNil(t, e.Details.Code)
				assert.Equal(t, tt.code, *e.Details.Code)
			}
		})
	}
}

func TestComplete_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "key").Complete(context.Background(), "m", nil, 0.1, 10)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_Deadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, "key").Complete(ctx, "m", nil, 0.1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestErrorDetails(t *testing.T) {
	d := ErrorDetails(404, []byte(`{"error":{"message":"gone","type":"model_unavailable","code":null}}`))
	assert.Equal(t, "gone", d.Message)
	assert.Equal(t, "model_unavailable", d.Type)
	assert.Nil(t, d.Code)
	assert.False(t, d.Retryable)

	d = ErrorDetails(500, []byte(`{"error":{"message":"x","code":42}}`))
	require.NotNil(t, d.Code)
	assert.Equal(t, "42", *d.Code)
	assert.True(t, d.Retryable)

	d = ErrorDetails(500, nil)
	assert.Equal(t, "Unknown error", d.Message)
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/check-balance", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		io.WriteString(w, `{"usd_balance":"129.46956147"}`)
	}))
	defer srv.Close()

	bal, err := New(srv.URL+"/api/v1", "key").Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 129.46956147, bal, 1e-9)
}

func TestBalance_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL+"/api/v1", "key").Balance(context.Background())
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://nano-gpt.com", originOf("https://nano-gpt.com/api/v1"))
	assert.Equal(t, "http://h", originOf("http://h/v1"))
	assert.Equal(t, "http://h", originOf("http://h"))
}
