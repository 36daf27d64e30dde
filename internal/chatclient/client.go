// Package chatclient is the Go client for the feedbackbot HTTP API. Send
// streams a chat reply with the two-phase retry policy; the remaining methods
// wrap the auth, balance, model and PII detection endpoints.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/retry"
	"github.com/gonkalabs/feedbackbot-go/internal/session"
)

// Client talks to one feedbackbot server. It keeps the session cookies the
// server hands out and replays them on every request.
//
// A Client is safe for concurrent use, but one conversation should not have
// more than one Send in flight.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	sleep   retry.SleepFunc

	mu      sync.Mutex
	cookies map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. It should not have an
// overall timeout, since chat replies stream for a long time.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithPolicy replaces the retry policy used by Send.
func WithPolicy(p retry.Policy) Option { return func(c *Client) { c.policy = p } }

// WithSleep replaces the wait between retries.
func WithSleep(s retry.SleepFunc) Option { return func(c *Client) { c.sleep = s } }

// WithSessionToken seeds the session cookie, e.g. from a previous run.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.cookies[session.CookieSession] = token
		}
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		policy:  retry.DefaultPolicy(),
		sleep:   retry.Sleep,
		cookies: map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionToken returns the current session cookie value, if any.
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies[session.CookieSession]
}

// The server marks its cookies Secure, which net/http/cookiejar would refuse
// to send back over plain http to a local server, so cookies are kept by hand.
func (c *Client) storeCookies(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range resp.Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}
}

func (c *Client) addCookies(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addCookies(req)
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.storeCookies(resp)
	return resp, nil
}

// doJSON sends a single request and decodes the data of a success envelope
// into out (which may be nil). Failures come back as *apierr.Error.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", path, ctx.Err())
		}
		return apierr.New(0, "Network error: "+err.Error(), true, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	var env apierr.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	if !env.Success {
		return apierr.New(resp.StatusCode, env.Error, false, env.ErrorDetails)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := env.Decode(out); err != nil {
		return fmt.Errorf("%s: decode data: %w", path, err)
	}
	return nil
}

// decodeError builds an *apierr.Error from a non-2xx response. The server's
// errorDetails decide retryability when present; otherwise the status
// category does.
func decodeError(resp *http.Response) *apierr.Error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	status := resp.StatusCode

	var env apierr.Response
	if json.Unmarshal(b, &env) == nil && (env.Error != "" || env.ErrorDetails != nil) {
		msg := env.Error
		if msg == "" {
			msg = "Request failed"
		}
		if d := env.ErrorDetails; d != nil {
			if d.Status != 0 {
				status = d.Status
			}
			return apierr.New(status, msg, d.Retryable, d)
		}
		return apierr.New(status, msg, apierr.Categorize(status, nil).Retryable(), nil)
	}

	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return apierr.New(status, msg, apierr.Categorize(status, nil).Retryable(), nil)
}
