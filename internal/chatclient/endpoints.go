package chatclient

import (
	"context"
	"net/http"

	"github.com/gonkalabs/feedbackbot-go/internal/catalog"
	"github.com/gonkalabs/feedbackbot-go/internal/piidetect"
)

type authRequest struct {
	Password string `json:"password"`
}

// Authenticate logs in with the site password and stores the session cookie.
func (c *Client) Authenticate(ctx context.Context, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth", authRequest{Password: password}, nil)
}

// AuthenticateEnhanced unlocks the commercial models.
func (c *Client) AuthenticateEnhanced(ctx context.Context, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth-enhanced", authRequest{Password: password}, nil)
}

// EnhancedStatus says whether enhanced quality is password protected and
// whether this client may use it.
type EnhancedStatus struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}

// CheckEnhanced reports the enhanced-quality status.
func (c *Client) CheckEnhanced(ctx context.Context) (EnhancedStatus, error) {
	var st EnhancedStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/check-enhanced", nil, &st)
	return st, err
}

// VerifySession reports whether the stored session cookie is still valid.
func (c *Client) VerifySession(ctx context.Context) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/verify-session", nil, &out)
	return out.Valid, err
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/logout", nil, nil)
}

// Balance returns the upstream account balance in USD.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var out struct {
		Balance float64 `json:"balance"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/balance", nil, &out)
	return out.Balance, err
}

// ModelList is the server's model catalog.
type ModelList struct {
	Models       []catalog.Model `json:"models"`
	PIIModels    []string        `json:"piiModels"`
	DefaultModel string          `json:"defaultModel"`
}

// Models fetches the selectable models.
func (c *Client) Models(ctx context.Context) (*ModelList, error) {
	var out ModelList
	if err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectPII runs one detection attempt on the server.
func (c *Client) DetectPII(ctx context.Context, req piidetect.Request) (*piidetect.Result, error) {
	var out piidetect.Result
	if err := c.doJSON(ctx, http.MethodPost, "/api/pii-detect", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetectPIIWithFallback runs detection across models (the server's PII
// models when opts.Models is empty), retrying and falling back as
// piidetect.DetectWithFallback describes.
func (c *Client) DetectPIIWithFallback(ctx context.Context, text, note string, opts piidetect.FallbackOptions) (*piidetect.Result, error) {
	if len(opts.Models) == 0 {
		list, err := c.Models(ctx)
		if err != nil {
			return nil, err
		}
		opts.Models = list.PIIModels
	}
	if opts.Sleep == nil {
		opts.Sleep = c.sleep
	}
	return piidetect.DetectWithFallback(ctx, func(ctx context.Context, model string) (*piidetect.Result, error) {
		return c.DetectPII(ctx, piidetect.Request{Text: text, Context: note, Model: model})
	}, opts)
}
