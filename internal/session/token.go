// Package session signs and verifies the timestamped HMAC tokens stored in
// the session cookies.
//
// A token has the form "<subject>:<unixMillis>.<signature>" where signature is
// the unpadded base64url HMAC-SHA256 of everything before the dot. Tokens are
// never revoked; they simply stop verifying once older than MaxTokenAge.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// MaxTokenAge is how long a signed token stays valid.
const MaxTokenAge = 7 * 24 * time.Hour

// Token subjects issued by the auth endpoints.
const (
	SubjectSession  = "authenticated"
	SubjectEnhanced = "enhanced-authenticated"
)

// Sign returns a token for subject issued now.
func Sign(subject, secret string) string {
	return SignAt(subject, secret, time.Now())
}

// SignAt returns a token for subject issued at t.
// subject must not contain a dot, otherwise the token never verifies.
func SignAt(subject, secret string, t time.Time) string {
	payload := subject + ":" + strconv.FormatInt(t.UnixMilli(), 10)
	return payload + "." + signature(payload, secret)
}

// Verify reports whether token was signed with secret and is not expired.
func Verify(token, secret string) bool {
	return VerifyAt(token, secret, time.Now())
}

// VerifyAt is Verify evaluated at now. It never panics; any malformed input
// yields false.
func VerifyAt(token, secret string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return false
	}
	payload, sig := parts[0], parts[1]

	got, err := base64.RawURLEncoding.Strict().DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	// hmac.Equal is constant-time and treats a length mismatch as a mismatch.
	if !hmac.Equal(got, mac.Sum(nil)) {
		return false
	}

	idx := strings.IndexByte(payload, ':')
	if idx < 0 {
		return false
	}
	ts, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return false
	}
	age := now.UnixMilli() - ts
	return age >= 0 && age <= MaxTokenAge.Milliseconds()
}

func signature(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
