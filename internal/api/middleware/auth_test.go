package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/models"
)

const testSecret = "test-secret"

func contextWithUser(r *http.Request, user *models.User) context.Context {
	return context.WithValue(r.Context(), UserContextKey, user)
}

func mintToken(t *testing.T, secret string, userID uuid.UUID, name, role string, ttl time.Duration) string {
	t.Helper()
	claims := AccessClaims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func authedProbe(m *AuthMiddleware) (http.Handler, *[]*models.User) {
	var seen []*models.User
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetUserFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	h, seen := authedProbe(m)

	userID := uuid.New()
	req := httptest.NewRequest("GET", "/projects/x/thread", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, userID, "Boss Ben", "boss", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(*seen) != 1 {
		t.Fatal("handler not reached")
	}
	user := (*seen)[0]
	if user.ID != userID || user.Name != "Boss Ben" || user.Role != models.RoleBoss {
		t.Fatalf("wrong user in context: %+v", user)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	h, seen := authedProbe(m)

	token := mintToken(t, testSecret, uuid.New(), "HQ Anna", "hq", time.Hour)
	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via query token, got %d", rec.Code)
	}
	if len(*seen) != 1 {
		t.Fatal("handler not reached")
	}
}

func TestRequireAuthRejects(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	h, _ := authedProbe(m)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"wrong secret", mintToken(t, "other-secret", uuid.New(), "X", "hq", time.Hour)},
		{"expired", mintToken(t, testSecret, uuid.New(), "X", "hq", -time.Minute)},
		{"unknown role", mintToken(t, testSecret, uuid.New(), "X", "superuser", time.Hour)},
	}

	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/projects/x/thread", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
}

func TestRequireAuthRejectsBadSubject(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	h, _ := authedProbe(m)

	claims := AccessClaims{
		Name: "X",
		Role: "hq",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad subject, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	gate := RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	req := httptest.NewRequest("GET", "/internal/stats", nil)
	req = req.WithContext(contextWithUser(req, admin))
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin rejected: %d", rec.Code)
	}

	boss := &models.User{ID: uuid.New(), Role: models.RoleBoss}
	req = httptest.NewRequest("GET", "/internal/stats", nil)
	req = req.WithContext(contextWithUser(req, boss))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin passed the role gate: %d", rec.Code)
	}

	// No user at all
	req = httptest.NewRequest("GET", "/internal/stats", nil)
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous passed the role gate: %d", rec.Code)
	}
}
