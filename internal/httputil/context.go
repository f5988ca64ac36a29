package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const (
	userNameKey contextKey = "userName"
)

// WithUserName adds the authenticated user name to the request context
func WithUserName(r *http.Request, userName string) *http.Request {
	ctx := context.WithValue(r.Context(), userNameKey, userName)
	return r.WithContext(ctx)
}

// GetUserName retrieves the user name from context, returns empty string if not found
func GetUserName(r *http.Request) string {
	userName, _ := r.Context().Value(userNameKey).(string)
	return userName
}
