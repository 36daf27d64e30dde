// Package upstream talks to the OpenAI-compatible inference API (NanoGPT).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
)

// ErrEmptyResponse is returned by Complete when the model answered without content.
var ErrEmptyResponse = errors.New("upstream: empty response")

// Message is one chat message sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a streaming chat completion.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type streamBody struct {
	ChatRequest
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`
}

// Client talks to the upstream API with a bearer key.
type Client struct {
	baseURL string // e.g. https://nano-gpt.com/api/v1
	apiKey  string

	http   *http.Client
	stream *http.Client
	oai    *openai.Client
}

// New creates an upstream Client. baseURL includes the version path.
func New(baseURL, apiKey string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Transport: transport}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
		// No overall timeout: streaming responses can run for a long time.
		stream: &http.Client{Transport: transport},
		oai:    openai.NewClientWithConfig(cfg),
	}
}

// StreamChat posts a streaming chat completion and returns the raw response.
// The caller must close resp.Body and check the status code.
func (c *Client) StreamChat(ctx context.Context, cr ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(streamBody{
		ChatRequest:   cr,
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("stream chat: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("stream chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	slog.Debug("upstream stream request", "url", url, "model", cr.Model, "messages", len(cr.Messages))
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream chat: %w", err)
	}
	return resp, nil
}

// Complete runs a non-streaming chat completion and returns the first
// choice's content. HTTP failures are returned as *apierr.Error.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	slog.Debug("upstream completion request", "model", model, "messages", len(messages))
	resp, err := c.oai.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("complete: %w", convertError(err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		slog.Warn("upstream: completion truncated by token limit", "model", model, "max_tokens", maxTokens)
	}
	return resp.Choices[0].Message.Content, nil
}

// convertError maps go-openai errors to *apierr.Error. Transport errors pass
// through unchanged so callers can still match context errors.
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		d := &apierr.Details{
			Status:    apiErr.HTTPStatusCode,
			Message:   apiErr.Message,
			Type:      apiErr.Type,
			Retryable: apierr.RetryableStatus(apiErr.HTTPStatusCode),
		}
		if apiErr.Code != nil {
			d.Code = apierr.StringPtr(fmt.Sprint(apiErr.Code))
		}
		if d.Message == "" {
			d.Message = http.StatusText(apiErr.HTTPStatusCode)
		}
		return apierr.New(apiErr.HTTPStatusCode, d.Message, d.Retryable, d)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		d := ErrorDetails(reqErr.HTTPStatusCode, reqErr.Body)
		return apierr.New(reqErr.HTTPStatusCode, d.Message, d.Retryable, d)
	}
	return err
}

// ErrorDetails decodes an upstream error body of the form
// {"error":{"message","type","code"}}. Non-JSON bodies become the message.
func ErrorDetails(status int, body []byte) *apierr.Details {
	var parsed struct {
		Error *struct {
			Message string          `json:"message"`
			Type    string          `json:"type"`
			Code    json.RawMessage `json:"code"`
		} `json:"error"`
	}
	d := &apierr.Details{Status: status, Retryable: apierr.RetryableStatus(status)}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		d.Message = parsed.Error.Message
		d.Type = parsed.Error.Type
		if code := decodeCode(parsed.Error.Code); code != "" {
			d.Code = apierr.StringPtr(code)
		}
	}
	if d.Message == "" {
		d.Message = strings.TrimSpace(string(body))
	}
	if d.Message == "" {
		d.Message = "Unknown error"
	}
	return d
}

func decodeCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// ReadError drains an error response and returns its details.
func ReadError(resp *http.Response) *apierr.Details {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return ErrorDetails(resp.StatusCode, body)
}

// Balance returns the account balance in USD. The balance endpoint lives
// under /api rather than the versioned path.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	url := originOf(c.baseURL) + "/api/check-balance"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d := ReadError(resp)
		return 0, apierr.New(resp.StatusCode, fmt.Sprintf("Balance check failed: %d", resp.StatusCode), d.Retryable, d)
	}

	var result struct {
		USDBalance any `json:"usd_balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("balance: decode: %w", err)
	}
	// usd_balance is a decimal string, e.g. "129.46956147".
	s, ok := result.USDBalance.(string)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// originOf strips a trailing /v1 or /api/v1 from baseURL.
func originOf(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/v1")
	return strings.TrimSuffix(u, "/api")
}
