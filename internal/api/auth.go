package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/feedbackbot-go/internal/apierr"
	"github.com/gonkalabs/feedbackbot-go/internal/session"
)

type authRequest struct {
	Password *string `json:"password"`
}

func (h *Handler) auth(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "session", h.opts.PasswordHash, session.CookieSession, session.SubjectSession, "Authenticated")
}

func (h *Handler) authEnhanced(w http.ResponseWriter, r *http.Request) {
	if h.opts.EnhancedPasswordHash == "" {
		writeJSON(w, http.StatusForbidden, apierr.Fail("Enhanced quality not configured", nil))
		return
	}
	h.login(w, r, "enhanced", h.opts.EnhancedPasswordHash, session.CookieEnhanced, session.SubjectEnhanced, "Enhanced access granted")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, kind, wantHash, cookie, subject, okMsg string) {
	if !h.limiter.allow(clientIP(r)) {
		h.metrics.AuthAttempts.WithLabelValues(kind, "limited").Inc()
		slog.Warn("auth: rate limited", "kind", kind, "ip", clientIP(r))
		writeErr(w, http.StatusTooManyRequests, "Too many login attempts", &apierr.Details{
			Status:    http.StatusTooManyRequests,
			Message:   "Too many login attempts, try again in a minute",
			Retryable: true,
		})
		return
	}

	var body authRequest
	if err := decodeBody(w, r, &body); err != nil || body.Password == nil {
		writeJSON(w, http.StatusBadRequest, apierr.Fail("Invalid request", nil))
		return
	}
	if !passwordMatches(*body.Password, wantHash) {
		h.metrics.AuthAttempts.WithLabelValues(kind, "invalid").Inc()
		writeJSON(w, http.StatusUnauthorized, apierr.Fail("Invalid password", nil))
		return
	}

	h.metrics.AuthAttempts.WithLabelValues(kind, "ok").Inc()
	session.SetCookie(w, cookie, subject, h.opts.SessionSecret)
	writeJSON(w, http.StatusOK, apierr.OK(map[string]string{"message": okMsg}))
}

// passwordMatches compares the hex SHA-256 of password with wantHash in
// constant time. Digests of different length never match.
func passwordMatches(password, wantHash string) bool {
	sum := sha256.Sum256([]byte(password))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}

type enhancedStatus struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}

func (h *Handler) checkEnhanced(w http.ResponseWriter, r *http.Request) {
	st := h.enhancedStatus(r)
	writeJSON(w, http.StatusOK, apierr.OK(st))
}

// enhancedStatus: when no enhanced password is configured the commercial
// models are open to every logged-in user.
func (h *Handler) enhancedStatus(r *http.Request) enhancedStatus {
	if h.opts.EnhancedPasswordHash == "" {
		return enhancedStatus{Configured: false, Authenticated: true}
	}
	return enhancedStatus{
		Configured:    true,
		Authenticated: session.Valid(r, session.CookieEnhanced, h.opts.SessionSecret),
	}
}

func (h *Handler) verifySession(w http.ResponseWriter, r *http.Request) {
	valid := session.Valid(r, session.CookieSession, h.opts.SessionSecret)
	writeJSON(w, http.StatusOK, apierr.OK(map[string]bool{"valid": valid}))
}

func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	session.ClearCookie(w, session.CookieSession)
	writeJSON(w, http.StatusOK, apierr.OK(map[string]string{"message": "Logged out"}))
}

// requireSession rejects requests without a valid session cookie.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !session.Valid(r, session.CookieSession, h.opts.SessionSecret) {
			writeJSON(w, http.StatusUnauthorized, apierr.Fail("Unauthorized", nil))
			return
		}
		next(w, r)
	}
}
