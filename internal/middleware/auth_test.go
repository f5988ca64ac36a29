package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"vibesession/internal/domain"
	"vibesession/internal/domain/models"
	"vibesession/internal/httputil"
)

type fakeVerifier struct {
	claims *models.IdentityClaims
	err    error
}

func (f *fakeVerifier) VerifyToken(token string) (*models.IdentityClaims, error) {
	return f.claims, f.err
}

func (f *fakeVerifier) Close() error { return nil }

func runAuth(t *testing.T, verifier *fakeVerifier, mutate func(*http.Request)) (*httptest.ResponseRecorder, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seenUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = httputil.GetUserName(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	mutate(req)
	rec := httptest.NewRecorder()

	AuthMiddleware(verifier, logger)(next).ServeHTTP(rec, req)
	return rec, seenUser
}

func TestAuthMiddlewareBearerToken(t *testing.T) {
	claims := &models.IdentityClaims{Email: "alice@example.com"}
	rec, user := runAuth(t, &fakeVerifier{claims: claims}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer sometoken")
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if user != "alice@example.com" {
		t.Fatalf("user = %q, want claims email", user)
	}
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	rec, _ := runAuth(t, &fakeVerifier{err: domain.ErrUnauthorized}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer bad")
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareForwardedEmail(t *testing.T) {
	rec, user := runAuth(t, &fakeVerifier{}, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Email", "bob@example.com")
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if user != "bob@example.com" {
		t.Fatalf("user = %q, want forwarded email", user)
	}
}

func TestAuthMiddlewareNoCredentials(t *testing.T) {
	rec, _ := runAuth(t, &fakeVerifier{}, func(r *http.Request) {})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareHealthBypass(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	AuthMiddleware(&fakeVerifier{}, logger)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want health check to bypass auth", rec.Code)
	}
}
