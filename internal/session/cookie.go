package session

import (
	"net/http"
)

// Cookie names.
const (
	CookieSession  = "session"
	CookieEnhanced = "enhanced-session"
)

// SetCookie writes a freshly signed token for subject into cookie name.
func SetCookie(w http.ResponseWriter, name, subject, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    Sign(subject, secret),
		Path:     "/",
		MaxAge:   int(MaxTokenAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires cookie name on the client.
func ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Valid reports whether the request carries cookie name holding a valid token.
func Valid(r *http.Request, name, secret string) bool {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return false
	}
	return Verify(c.Value, secret)
}
