package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/store"
)

const (
	authFailureLimit  = 10
	authFailureWindow = time.Minute
)

// RequireAuth validates the bearer token and populates the request
// identity. Tokens have the form "<user-id>.<secret>"; the secret is
// bcrypt-compared against the user's stored hash. Failed attempts are
// rate-limited per client IP so the secret cannot be brute-forced.
//
// WebSocket clients cannot set headers, so a "token" query parameter is
// accepted as a fallback.
func RequireAuth(users *store.UserStore, limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			ip := RealIP(r)

			userID, secret, ok := splitToken(token)
			if !ok {
				authFailed(w, limiter, ip)
				return
			}

			user, err := users.GetByID(userID)
			if err != nil || user == nil {
				authFailed(w, limiter, ip)
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(user.TokenHash), []byte(secret)) != nil {
				authFailed(w, limiter, ip)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: user.ID, Name: user.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func splitToken(token string) (uuid.UUID, string, bool) {
	i := strings.IndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(token[:i])
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, token[i+1:], true
}

// authFailed records a failed attempt for the IP. Once the window's
// failure budget is spent the response switches to 429.
func authFailed(w http.ResponseWriter, limiter *RateLimiter, ip string) {
	if !limiter.Allow("auth:"+ip, authFailureLimit, authFailureWindow) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
