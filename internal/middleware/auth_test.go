package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"app/internal/config"
	"app/internal/model"
	"app/internal/service"
)

func testSessions() service.SessionService {
	return service.NewSessionService(&config.Config{
		SessionSecret:  "test-secret",
		SessionCookie:  "boostugc_session",
		SessionTTLDays: 14,
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	sessions := testSessions()
	var seen *model.Session
	handler := AuthMiddleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No cookie.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	// Valid cookie.
	cookie, err := sessions.Create("user@example.com", model.PlanFree, 10)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.Email != "user@example.com" {
		t.Fatalf("session in context = %+v", seen)
	}
}

func TestAdminMiddleware(t *testing.T) {
	t.Parallel()

	sessions := testSessions()
	authz := service.NewAuthorizer(&config.Config{AdminEmails: "admin@example.com"})
	handler := AuthMiddleware(sessions)(AdminMiddleware(authz)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	serve := func(email string) int {
		cookie, err := sessions.Create(email, model.PlanFree, 10)
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/admin/credits", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve("user@example.com"); code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", code)
	}
	if code := serve("admin@example.com"); code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", code)
	}
}
