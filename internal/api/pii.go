package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
	"github.com/gonkalabs/feedbackbot-go/internal/upstream"
)

func (h *Handler) piiDetect(w http.ResponseWriter, r *http.Request) {
	var req piidetect.Request
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	model := req.Model
	if model == "" {
		model = h.catalog.PIIModels[0]
	}
	if !h.catalog.IsPIIModel(model) {
		badRequest(w, "Invalid PII detection model: "+model)
		return
	}

	res, err := h.detector.Detect(r.Context(), model, req)
	if err != nil {
		h.detectError(w, r, model, err)
		return
	}

	for _, f := range res.Findings {
		h.metrics.PIIFindings.WithLabelValues(string(f.Category)).Inc()
	}
	writeJSON(w, http.StatusOK, apierr.OK(res))
}

func (h *Handler) detectError(w http.ResponseWriter, r *http.Request, model string, err error) {
	var (
		status int
		msg    string
		d      *apierr.Details
	)
	switch e, isAPI := apierr.As(err); {
	case errors.Is(err, piidetect.ErrTimeout):
		status, msg = http.StatusRequestTimeout, "PII detection request timed out"
		d = &apierr.Details{Status: status, Message: err.Error(), Type: "TimeoutError", Retryable: true}
	case isAPI:
		status, msg = e.Status, fmt.Sprintf("PII detection failed: %d", e.Status)
		d = e.Details
		if d == nil {
			d = &apierr.Details{Status: e.Status, Message: e.Message, Retryable: apierr.RetryableStatus(e.Status)}
		}
	case errors.Is(err, piidetect.ErrUnparseable):
		status, msg = http.StatusInternalServerError, "Failed to parse PII detection response"
		d = &apierr.Details{Status: status, Message: "Invalid JSON in PII detection response", Retryable: true}
	case errors.Is(err, upstream.ErrEmptyResponse):
		status, msg = http.StatusInternalServerError, "No content in PII detection response"
		d = &apierr.Details{Status: status, Message: "Empty response from PII detection model", Retryable: true}
	default:
		if r.Context().Err() != nil {
			return
		}
		status, msg = http.StatusInternalServerError, "Internal server error"
		d = &apierr.Details{Status: status, Message: strings.TrimPrefix(err.Error(), "detect: "), Type: "InternalError", Retryable: true}
	}

	cat := apierr.Categorize(status, d)
	slog.Error("pii: detection failed", "model", model, "status", status, "category", cat)
	h.metrics.UpstreamErrors.WithLabelValues("/api/pii-detect", string(cat)).Inc()
	writeErr(w, status, msg, d)
}
