package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// TokenAuth guards mutating routes with a static bearer token.
// The zero token disables the check.
type TokenAuth struct {
	digest  [sha256.Size]byte
	enabled bool
}

// NewTokenAuth returns a guard for token. An empty token allows everything.
func NewTokenAuth(token string) *TokenAuth {
	if token == "" {
		return &TokenAuth{}
	}
	return &TokenAuth{digest: sha256.Sum256([]byte(token)), enabled: true}
}

// Enabled reports whether requests must carry the token
func (a *TokenAuth) Enabled() bool {
	return a != nil && a.enabled
}

// Valid checks the Authorization header of r.
// Digests are compared so timing does not leak the token length.
func (a *TokenAuth) Valid(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	d := sha256.Sum256([]byte(got))
	return subtle.ConstantTimeCompare(d[:], a.digest[:]) == 1
}

// Middleware rejects requests without a valid token with 401
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(r) {
			log.Printf("⚠️ Unauthorized %s %s from %s", r.Method, r.URL.Path, GetClientIP(r))
			RecordConnectionRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="danmaku"`)
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
