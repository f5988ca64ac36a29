package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"vibesession/internal/auth"
	"vibesession/internal/httputil"
)

// AuthMiddleware resolves the caller's identity and stores it in the request
// context. A Bearer token is verified against the provider's JWKS; without
// one, the X-Forwarded-Email header injected by the workspace app proxy is
// trusted. Requests with neither are rejected.
func AuthMiddleware(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks don't carry identity
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			if token, ok := bearerToken(r); ok {
				claims, err := verifier.VerifyToken(token)
				if err != nil {
					httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				next.ServeHTTP(w, httputil.WithUserName(r, claims.UserName()))
				return
			}

			if email := strings.TrimSpace(r.Header.Get("X-Forwarded-Email")); email != "" {
				next.ServeHTTP(w, httputil.WithUserName(r, email))
				return
			}

			logger.Debug("request without credentials", "path", r.URL.Path)
			httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
