package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/prompts"
	"github.com/gonkalabs/feedbackbot-go/internal/sse"
	"github.com/gonkalabs/feedbackbot-go/internal/upstream"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 4000
)

type chatRequest struct {
	Messages []upstream.Message `json:"messages"`
	Model    string             `json:"model,omitempty"`
	Subject  string             `json:"subject,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		badRequest(w, "messages must not be empty")
		return
	}
	for i, m := range req.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			badRequest(w, fmt.Sprintf("message %d has invalid role %q", i, m.Role))
			return
		}
	}

	model := req.Model
	if model == "" {
		model = h.opts.DefaultModel
	}
	if m, ok := h.catalog.ByID(model); ok {
		if !m.TEE() && !h.enhancedStatus(r).Authenticated {
			writeErr(w, http.StatusForbidden, "Enhanced quality login required", &apierr.Details{
				Status:  http.StatusForbidden,
				Message: "model " + model + " requires enhanced-quality access",
			})
			return
		}
	} else if model != h.opts.DefaultModel {
		writeErr(w, http.StatusBadRequest, "Unknown model: "+model, &apierr.Details{
			Status:  http.StatusBadRequest,
			Message: "model is not in the catalog",
			Code:    apierr.StringPtr("model_not_found"),
		})
		return
	}

	messages := make([]upstream.Message, 0, len(req.Messages)+1)
	messages = append(messages, upstream.Message{Role: "system", Content: prompts.System(req.Subject)})
	messages = append(messages, req.Messages...)

	slog.Info("chat: request", "model", model, "subject", req.Subject, "messages", len(req.Messages))

	resp, err := h.client.StreamChat(r.Context(), upstream.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		slog.Error("chat: upstream unreachable", "err", err)
		h.metrics.UpstreamErrors.WithLabelValues("/api/chat", string(apierr.Network)).Inc()
		writeErr(w, http.StatusBadGateway, "Upstream unreachable", &apierr.Details{
			Status:    http.StatusBadGateway,
			Message:   "could not reach the inference API",
			Type:      "NetworkError",
			Retryable: true,
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d := upstream.ReadError(resp)
		cat := apierr.Categorize(resp.StatusCode, d)
		slog.Error("chat: upstream error", "status", resp.StatusCode, "category", cat, "message", d.Message)
		h.metrics.UpstreamErrors.WithLabelValues("/api/chat", string(cat)).Inc()
		writeErr(w, resp.StatusCode, fmt.Sprintf("API error: %d", resp.StatusCode), d)
		return
	}

	h.streamResponse(w, r, resp.Body, model)
}

// streamResponse copies the upstream event stream to the client, flushing
// after every read, and records usage from the final frames.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, src io.Reader, model string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Warn("response writer does not support flushing")
	}

	done := h.metrics.StreamStarted()
	var tap sse.Tap
	success := false
	defer func() {
		tap.Flush()
		if tap.Usage != nil {
			h.metrics.ObserveTokens(model, tap.Usage.PromptTokens, tap.Usage.CompletionTokens)
		}
		done(success)
		slog.Info("chat: stream finished",
			"model", model,
			"chunks", tap.Chunks,
			"bytes", tap.Bytes,
			"done", tap.Done,
			"ok", success,
		)
	}()

	buf := make([]byte, 4096)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			_, _ = tap.Write(buf[:n])
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				slog.Warn("chat: client write error", "err", writeErr)
				return
			}
			if ok {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				success = true
			} else if r.Context().Err() == nil {
				slog.Error("chat: upstream read error", "err", readErr)
			}
			return
		}
	}
}
