package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"vibesession/internal/httputil"
)

// Recovery converts a panic anywhere below it in the chain into a 500
// problem response. It sits outside auth, so the log records the caller's
// address rather than a resolved identity.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"remote", r.RemoteAddr,
						"stack", string(debug.Stack()),
					)

					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
