package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

type contextKey string

// userIDKey is the context key for the authenticated user identity.
const userIDKey contextKey = "user_id"

// anonymousUser identifies requests when auth is disabled.
const anonymousUser = "anonymous"

// GetUserID returns the authenticated user for the request, or
// "anonymous" when auth is disabled.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return v
	}
	return anonymousUser
}

// WithUserID returns a context carrying the user identity. Exposed for
// handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// APIKeyAuth validates API keys and maps each to a user identity.
//
// Keys are configured as "user:key" pairs; a bare "key" entry maps to
// the anonymous user. With no keys configured, auth is disabled and all
// requests pass as anonymous. Keys arrive via:
//   - Authorization: Bearer <key>
//   - X-API-Key: <key>
//   - api_key query parameter (websocket connections can't set headers)
//
// /health, /version, /files/* and the provider webhook endpoints stay
// public: providers call webhooks with no credentials, and correlation
// misses there are already harmless no-ops.
type APIKeyAuth struct {
	mu      sync.RWMutex
	users   map[string]string // key → user id
	enabled bool
}

// NewAPIKeyAuth builds the middleware from "user:key" pairs.
func NewAPIKeyAuth(pairs []string) *APIKeyAuth {
	a := &APIKeyAuth{users: make(map[string]string)}
	for _, pair := range pairs {
		user, key, found := strings.Cut(pair, ":")
		if !found {
			key, user = user, anonymousUser
		}
		if key = strings.TrimSpace(key); key != "" {
			a.users[key] = strings.TrimSpace(user)
			a.enabled = true
		}
	}
	return a
}

// Enabled reports whether key validation is active.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Middleware enforces key auth and injects the user identity.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
			return
		}
		user, ok := a.lookup(key)
		if !ok {
			respondUnauthorized(w, "Invalid API key.")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user)))
	})
}

// lookup validates the key in constant time per entry.
func (a *APIKeyAuth) lookup(candidate string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for key, user := range a.users {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return user, true
		}
	}
	return "", false
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
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
	if strings.HasPrefix(path, "/files/") {
		return true
	}
	// Provider-invoked completion callbacks carry no credentials.
	if strings.HasPrefix(path, "/api/v1/generate/") && strings.HasSuffix(path, "/webhook") {
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="artloom"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"details": msg,
	})
}
