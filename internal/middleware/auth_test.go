package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/database"
	"github.com/fennwick/trellis/internal/store"
)

func setupAuthMiddleware(t *testing.T) (*store.UserStore, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := store.NewUserStore(db)
	secret := "s3cret-token-value"
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	u, err := us.Create("Alice", string(hash))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return us, fmt.Sprintf("%s.%s", u.ID, secret)
}

func authHandler(us *store.UserStore, onAuth func(auth.Identity)) http.Handler {
	return RequireAuth(us, NewRateLimiter())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		if onAuth != nil {
			onAuth(id)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireAuthNoToken(t *testing.T) {
	us, _ := setupAuthMiddleware(t)
	handler := authHandler(us, nil)

	req := httptest.NewRequest("GET", "/api/pillars", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthBadSecret(t *testing.T) {
	us, token := setupAuthMiddleware(t)
	handler := authHandler(us, nil)

	req := httptest.NewRequest("GET", "/api/pillars", nil)
	req.Header.Set("Authorization", "Bearer "+token+"wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthUnknownUser(t *testing.T) {
	us, _ := setupAuthMiddleware(t)
	handler := authHandler(us, nil)

	req := httptest.NewRequest("GET", "/api/pillars", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s.whatever", uuid.New()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	us, token := setupAuthMiddleware(t)

	var got auth.Identity
	handler := authHandler(us, func(id auth.Identity) { got = id })

	req := httptest.NewRequest("GET", "/api/pillars", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.Name != "Alice" {
		t.Errorf("identity name = %q, want Alice", got.Name)
	}
}

func TestRequireAuthQueryParamFallback(t *testing.T) {
	us, token := setupAuthMiddleware(t)
	handler := authHandler(us, nil)

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAuthRateLimitsFailures(t *testing.T) {
	us, token := setupAuthMiddleware(t)
	limiter := NewRateLimiter()
	handler := RequireAuth(us, limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < authFailureLimit; i++ {
		req := httptest.NewRequest("GET", "/api/pillars", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i, rec.Code, http.StatusUnauthorized)
		}
	}

	req := httptest.NewRequest("GET", "/api/pillars", nil)
	req.RemoteAddr = "10.0.0.7:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d after exhausting failures", rec.Code, http.StatusTooManyRequests)
	}

	// A valid token from the same IP still works: only failures count.
	req = httptest.NewRequest("GET", "/api/pillars", nil)
	req.RemoteAddr = "10.0.0.7:1234"
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want %d", rec.Code, http.StatusOK)
	}

	// A different IP has its own budget.
	req = httptest.NewRequest("GET", "/api/pillars", nil)
	req.RemoteAddr = "10.0.0.8:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("other IP status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
