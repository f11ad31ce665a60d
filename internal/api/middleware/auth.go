package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/imagetagger/internal/api/response"
)

// Auth validates a static Bearer token against a bcrypt hash. A server
// deployed with an empty hash runs open, which is the expected setup for a
// single-user workstation.
type Auth struct {
	tokenHash string
}

// NewAuth creates the Auth middleware. tokenHash is the bcrypt hash of the
// shared API token; empty disables authentication.
func NewAuth(tokenHash string) *Auth {
	return &Auth{tokenHash: tokenHash}
}

// Enabled reports whether a token hash is configured.
func (a *Auth) Enabled() bool {
	return a.tokenHash != ""
}

// Authenticate validates the Bearer token on protected routes.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
