package httputil

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/foothill/blog/internal/logging"
)

const (
	// csrfCookieName holds the double-submit token
	csrfCookieName = "csrf_token"

	// CSRFFieldName is the hidden form field every POST form carries
	CSRFFieldName = "csrf_token"

	csrfHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 86400

	// maxFormMemory is how much of a multipart body is held in memory before
	// spilling to temp files
	maxFormMemory = 1 << 20
)

type csrfContextKey struct{}

// CSRF validates a double-submit token on every state-changing request.
// Safe methods get a token cookie when they lack one; the token is always
// placed in the request context for Render.
func CSRF(renderer *Renderer, secure bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.GetLoggerFromContext(r.Context())

			if isSafeMethod(r.Method) {
				token, err := ensureCSRFCookie(w, r, secure)
				if err != nil {
					logger.Error("failed to generate CSRF token", "error", err)
					renderer.Error(w, r, http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
				return
			}

			if err := parseForm(r); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					logger.Warn("request body too large", "limit", tooLarge.Limit)
					renderer.Error(w, r, http.StatusRequestEntityTooLarge)
					return
				}
				logger.Warn("failed to parse form", "error", err)
				renderer.Error(w, r, http.StatusBadRequest)
				return
			}

			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				logger.Warn("CSRF validation failed: missing cookie token")
				renderer.Error(w, r, http.StatusForbidden)
				return
			}

			submitted := r.PostFormValue(CSRFFieldName)
			if submitted == "" {
				submitted = r.Header.Get(csrfHeaderName)
			}
			if submitted == "" {
				logger.Warn("CSRF validation failed: missing form token")
				renderer.Error(w, r, http.StatusForbidden)
				return
			}

			if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
				logger.Warn("CSRF validation failed: token mismatch")
				renderer.Error(w, r, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, cookie.Value)))
		})
	}
}

// CSRFToken returns the token forms on this request must echo back
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey{}).(string)
	return token
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

// isSafeMethod reports whether the method is read-only
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie returns the existing token or sets a fresh one
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, secure bool) (string, error) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// generateCSRFToken creates a cryptographically random token
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
