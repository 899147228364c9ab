package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// DefaultAPIKeyHeader is the header checked after Authorization: Bearer.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyAuth is middleware that validates API key authentication.
//
// When at least one key is configured (STUDIO_API_KEYS), every request
// except the public paths must carry a valid key via:
//   - Authorization: Bearer <key>
//   - X-API-Key: <key> (header name configurable)
//   - ?api_key=<key> (for EventSource clients that cannot set headers)
//
// /health and /version are always public.
type APIKeyAuth struct {
	mu      sync.RWMutex
	keys    map[string]bool
	header  string
	enabled bool
}

// NewAPIKeyAuth creates the middleware from the configured keys. Blank keys
// are ignored; no keys disables auth.
func NewAPIKeyAuth(keys []string, header string) *APIKeyAuth {
	if strings.TrimSpace(header) == "" {
		header = DefaultAPIKeyHeader
	}
	auth := &APIKeyAuth{
		keys:   make(map[string]bool),
		header: header,
	}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key != "" {
			auth.keys[key] = true
			auth.enabled = true
		}
	}
	return auth
}

// Enabled returns whether API key auth is active.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// AddKey adds a new API key at runtime.
func (a *APIKeyAuth) AddKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[key] = true
	a.enabled = true
}

// RemoveKey removes an API key at runtime.
func (a *APIKeyAuth) RemoveKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, key)
	if len(a.keys) == 0 {
		a.enabled = false
	}
}

// Middleware returns an http.Handler middleware that enforces API key auth.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := a.extractAPIKey(r)
		if apiKey == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or "+a.header+" header.")
			return
		}

		// Constant-time comparison
		if !a.validateKey(apiKey) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) validateKey(candidate string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get(a.header); key != "" {
		return key
	}
	// SSE log streams
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}
	return ""
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="review-studio"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
