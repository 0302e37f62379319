package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestOpenModeAdmitsEverything(t *testing.T) {
	h := AuthenticateRequestMiddleware(SecConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/sweep", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("open mode admin call: status %d", rec.Code)
	}
}

func TestKeyedModeRejectsMissingKey(t *testing.T) {
	cfg := SecConfig{ClientKeys: map[string]struct{}{"ck": {}}}
	h := AuthenticateRequestMiddleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/requests/pending", nil)
	req.Header.Set("X-API-Key", "ck")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status %d", rec.Code)
	}
	if got := req.Header.Get("X-Role-Name"); got != "client" {
		t.Fatalf("role header: %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := SecConfig{AllowedOrigins: []string{"https://app.example.com"}}
	h := AuthenticateRequestMiddleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/requests", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("missing allow-origin header: %v", rec.Header())
	}

	// unknown origin gets no CORS headers
	req = httptest.NewRequest(http.MethodOptions, "/v1/requests", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for unknown origin")
	}
}

func TestOriginAllowedWildcard(t *testing.T) {
	if !originAllowed("https://anywhere.example", []string{"*"}) {
		t.Fatal("wildcard must allow any origin")
	}
	if originAllowed("https://a.example", nil) {
		t.Fatal("empty list must deny")
	}
}
