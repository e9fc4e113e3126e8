package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/foothill/blog/internal/logging"
)

// SessionCookieName is the cookie carrying the raw session token
const SessionCookieName = "session"

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const IdentityContextKey ContextKey = "identity"

// Middleware resolves the session cookie into an Identity on every request
type Middleware struct {
	sessions     SessionManager
	secureCookie bool
}

func NewMiddleware(sessions SessionManager, secureCookie bool) *Middleware {
	return &Middleware{sessions: sessions, secureCookie: secureCookie}
}

// LoadIdentity never rejects a request. A missing, expired or unknown session
// leaves the visitor anonymous; stale cookies are cleared.
func (m *Middleware) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				ClearSessionCookie(w, m.secureCookie)
			} else {
				logging.GetLoggerFromContext(r.Context()).Error("failed to resolve session", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		identity := Identity{UserID: sess.UserID, SessionToken: cookie.Value}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WithIdentity stores the identity in the context
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext returns the request identity, Anonymous when none was loaded
func IdentityFromContext(ctx context.Context) Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(Identity); ok {
		return identity
	}
	return Anonymous
}

// IsAuthenticated reports whether the request carries a live session
func IsAuthenticated(r *http.Request) bool {
	return IdentityFromContext(r.Context()).Authenticated()
}

// SetSessionCookie writes the session cookie. Remembered sessions get a
// persistent cookie; others end with the browser session.
func SetSessionCookie(w http.ResponseWriter, sess *Session, secure bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Remember {
		cookie.MaxAge = int(time.Until(sess.ExpiresAt).Seconds())
		cookie.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the session cookie in the browser
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
