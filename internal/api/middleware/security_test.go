package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestValidateRequestContentType(t *testing.T) {
	h := ValidateRequest(okHandler())

	req := httptest.NewRequest("POST", "/projects/x/messages", strings.NewReader(`{"body":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("JSON request rejected: %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/projects/x/messages", strings.NewReader("body=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("form request accepted: %d", rec.Code)
	}
}

func TestValidateRequestBlocksSuspiciousURLs(t *testing.T) {
	h := ValidateRequest(okHandler())

	for _, target := range []string{
		"/projects/../internal/stats",
		"/search?q=<script>alert(1)</script>",
	} {
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(16)(okHandler())

	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body accepted: %d", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/projects/123/thread", "/projects/:id"},
		{"/messages/01ABC/read", "/messages/:id"},
		{"/threads/123/typing", "/threads/:id"},
		{"/internal/users/123", "/internal/users/:id"},
		{"/health", "/health"},
		{"/ws", "/ws"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Fatalf("normalizePath(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
