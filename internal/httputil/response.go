package httputil

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// RespondJSON sends a JSON response with the given status code.
// Logs encoding errors to avoid silent failures.
func RespondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// Redirect sends a 302 to a local path
func Redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusFound)
}

// SafeNext returns next when it is a path on this site, otherwise fallback.
// Absolute and scheme-relative URLs are rejected so login cannot be used as an
// open redirect. Browsers drop tabs and newlines from a Location before
// resolving it, so any control character rejects next outright.
func SafeNext(next, fallback string) string {
	for i := 0; i < len(next); i++ {
		if next[i] < 0x20 || next[i] == 0x7f {
			return fallback
		}
	}
	if !localPath(next) {
		return fallback
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return fallback
	}
	if !localPath(u.Path) || !localPath(path.Clean(u.Path)) {
		return fallback
	}
	return next
}

func localPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	return !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// ClientIP returns the request's remote address without its port.
// chi's RealIP middleware has already applied forwarding headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
