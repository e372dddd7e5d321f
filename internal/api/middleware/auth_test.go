package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantUser != "" {
			if got := GetUserID(r.Context()); got != wantUser {
				t.Errorf("user = %q, want %q", got, wantUser)
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuthDisabledPassesThrough(t *testing.T) {
	auth := NewAPIKeyAuth(nil)
	if auth.Enabled() {
		t.Fatal("auth should be disabled with no keys")
	}

	req := httptest.NewRequest("GET", "/api/v1/canvases", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(okHandler(t, "anonymous")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKeyAuthValidBearerKey(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"alice:secret-1", "bob:secret-2"})

	req := httptest.NewRequest("GET", "/api/v1/canvases", nil)
	req.Header.Set("Authorization", "Bearer secret-2")
	rec := httptest.NewRecorder()
	auth.Middleware(okHandler(t, "bob")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKeyAuthQueryParam(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"alice:secret-1"})

	req := httptest.NewRequest("GET", "/api/v1/canvases/c1/events?api_key=secret-1", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(okHandler(t, "alice")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAPIKeyAuthRejectsMissingAndInvalid(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"alice:secret-1"})

	req := httptest.NewRequest("GET", "/api/v1/canvases", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(okHandler(t, "")).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/canvases", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	auth.Middleware(okHandler(t, "")).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad key: status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuthPublicPaths(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"alice:secret-1"})

	for _, path := range []string{
		"/health",
		"/version",
		"/files/abc.png",
		"/api/v1/generate/voice-generate/webhook",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		auth.Middleware(okHandler(t, "")).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestAPIKeyAuthBareKeyMapsToAnonymous(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"just-a-key"})

	req := httptest.NewRequest("GET", "/api/v1/canvases", nil)
	req.Header.Set("Authorization", "Bearer just-a-key")
	rec := httptest.NewRecorder()
	auth.Middleware(okHandler(t, "anonymous")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
