// Package api implements the feedbackbot HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/metrics"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
	"github.com/gonkalabs/feedbackbot-go/internal/upstream"
)

// maxBodyBytes bounds JSON request bodies. Student work travels in chat
// messages, so this is generous.
const maxBodyBytes = 4 << 20

// Upstream is the part of the inference API the handlers use.
type Upstream interface {
	StreamChat(ctx context.Context, cr upstream.ChatRequest) (*http.Response, error)
	Balance(ctx context.Context) (float64, error)
}

// Detector runs one PII detection.
type Detector interface {
	Detect(ctx context.Context, model string, req piidetect.Request) (*piidetect.Result, error)
}

// Options carries the handler's settings.
type Options struct {
	PasswordHash         string
	EnhancedPasswordHash string // empty: commercial models need no extra login
	SessionSecret        string
	DefaultModel         string
	AuthRatePerMinute    int
	StaticDir            string
}

// Handler implements all HTTP endpoints.
type Handler struct {
	client   Upstream
	detector Detector
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	limiter  *loginLimiter
	opts     Options
}

// New creates a Handler.
func New(client Upstream, detector Detector, cat *catalog.Catalog, m *metrics.Metrics, opts Options) *Handler {
	if opts.DefaultModel == "" {
		opts.DefaultModel = catalog.DefaultModelID
	}
	if opts.AuthRatePerMinute <= 0 {
		opts.AuthRatePerMinute = 10
	}
	return &Handler{
		client:   client,
		detector: detector,
		catalog:  cat,
		metrics:  m,
		limiter:  newLoginLimiter(opts.AuthRatePerMinute),
		opts:     opts,
	}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", h.metrics.Handler())

	mux.HandleFunc("POST /api/auth", h.auth)
	mux.HandleFunc("POST /api/auth-enhanced", h.authEnhanced)
	mux.HandleFunc("GET /api/check-enhanced", h.checkEnhanced)
	mux.HandleFunc("GET /api/verify-session", h.verifySession)
	mux.HandleFunc("POST /api/logout", h.logout)
	mux.HandleFunc("GET /api/models", h.listModels)

	mux.HandleFunc("POST /api/chat", h.requireSession(h.chat))
	mux.HandleFunc("POST /api/pii-detect", h.requireSession(h.piiDetect))
	mux.HandleFunc("POST /api/balance", h.requireSession(h.balance))

	if h.opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(h.opts.StaticDir)))
		slog.Info("serving static files", "dir", h.opts.StaticDir)
	}
}

// Routes returns a mux with every route registered, wrapped in request metrics.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return h.instrument(mux)
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type modelsResponse struct {
	Models       []catalog.Model `json:"models"`
	PIIModels    []string        `json:"piiModels"`
	DefaultModel string          `json:"defaultModel"`
}

func (h *Handler) listModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apierr.OK(modelsResponse{
		Models:       h.catalog.Models,
		PIIModels:    h.catalog.PIIModels,
		DefaultModel: h.opts.DefaultModel,
	}))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.client.Balance(r.Context())
	if err != nil {
		if e, ok := apierr.As(err); ok {
			slog.Error("balance: upstream error", "status", e.Status)
			h.metrics.UpstreamErrors.WithLabelValues("/api/balance", string(e.Category)).Inc()
			writeJSON(w, e.Status, apierr.Fail(e.Message, nil))
			return
		}
		slog.Error("balance: request failed", "err", err)
		h.metrics.UpstreamErrors.WithLabelValues("/api/balance", string(apierr.Network)).Inc()
		writeJSON(w, http.StatusInternalServerError, apierr.Fail("Failed to check balance", nil))
		return
	}
	writeJSON(w, http.StatusOK, apierr.OK(map[string]float64{"balance": bal}))
}

// ---------- helpers ----------

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr answers with a failure envelope carrying errorDetails.
func writeErr(w http.ResponseWriter, status int, msg string, d *apierr.Details) {
	writeJSON(w, status, apierr.Fail(msg, d))
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, &apierr.Details{
		Status:  http.StatusBadRequest,
		Message: msg,
	})
}
