package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"app/internal/api/v1/dto"
	"app/internal/config"
	"app/internal/logger"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
)

type silentMailer struct{}

func (silentMailer) Send(context.Context, service.MailMessage) error { return nil }

func testHandlerConfig() *config.Config {
	return &config.Config{
		SessionSecret:      "test-secret",
		SessionCookie:      "boostugc_session",
		SessionTTLDays:     14,
		ChallengeTTLMin:    10,
		LinkTokenTTLMin:    15,
		AccountEventsTopic: "account-events",
		FreeCredits:        10,
		InviteBonusCredits: 20,
		GraceCredits:       2,
	}
}

func newTestAuthMux(t *testing.T) (*http.ServeMux, service.AuthService, service.LedgerService) {
	t.Helper()
	cfg := testHandlerConfig()
	log := logger.New()

	authSvc := service.NewAuthService(repository.NewMemChallengeRepo(), silentMailer{}, cfg, log)
	sessionSvc := service.NewSessionService(cfg)
	ledgerSvc := service.NewLedgerService(repository.NewMemLedgerRepo(model.PlanFree, cfg.FreeCredits), repository.NewMemActivityRepo(), pubsub.NopPublisher{}, cfg, log)

	h := NewAuthHandler(authSvc, sessionSvc, ledgerSvc, validator.New(validator.WithRequiredStructEnabled()), log)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, authSvc, ledgerSvc
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRequestCodeAccepted(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAuthMux(t)
	rec := postJSON(t, mux, "/auth/request-code", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestRequestCodeRejectsBadPayload(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAuthMux(t)
	for _, body := range []string{`{}`, `{"email":"not-an-email"}`, `not json`} {
		rec := postJSON(t, mux, "/auth/request-code", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestVerifyCodeSetsSessionCookie(t *testing.T) {
	t.Parallel()

	mux, authSvc, _ := newTestAuthMux(t)
	ch, err := authSvc.IssueChallenge(context.Background(), "user@example.com", "")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	rec := postJSON(t, mux, "/auth/verify", `{"email":"user@example.com","code":"`+ch.Code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.SessionResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Email != "user@example.com" || resp.Plan != string(model.PlanFree) || resp.Credits != 10 {
		t.Fatalf("response = %+v", resp)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "boostugc_session" || cookies[0].Value == "" {
		t.Fatalf("cookies = %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
}

func TestVerifyCodeWrongCode(t *testing.T) {
	t.Parallel()

	mux, authSvc, _ := newTestAuthMux(t)
	if _, err := authSvc.IssueChallenge(context.Background(), "user@example.com", ""); err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	rec := postJSON(t, mux, "/auth/verify", `{"email":"user@example.com","code":"000000"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("failed verification must not set a cookie")
	}
}

func TestVerifyCodeGrantsInviteBonus(t *testing.T) {
	t.Parallel()

	mux, authSvc, ledgerSvc := newTestAuthMux(t)
	ch, err := authSvc.IssueChallenge(context.Background(), "user@example.com", "FRIEND-42")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	rec := postJSON(t, mux, "/auth/verify", `{"email":"user@example.com","code":"`+ch.Code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.SessionResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Credits != 30 {
		t.Fatalf("credits = %d, want 30 (free 10 + invite 20)", resp.Credits)
	}

	// A second login with another invitation must not stack the bonus.
	ch, err = authSvc.IssueChallenge(context.Background(), "user@example.com", "FRIEND-43")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}
	rec = postJSON(t, mux, "/auth/verify", `{"email":"user@example.com","code":"`+ch.Code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	account, err := ledgerSvc.GetBalance(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if account.Credits != 30 {
		t.Fatalf("credits = %d, want 30 after repeat invitation", account.Credits)
	}
}

func TestLinkVerifyFlow(t *testing.T) {
	t.Parallel()

	mux, authSvc, _ := newTestAuthMux(t)
	token, err := authSvc.IssueLinkToken("user@example.com", "")
	if err != nil {
		t.Fatalf("IssueLinkToken error: %v", err)
	}

	rec := postJSON(t, mux, "/auth/link/verify", `{"token":"`+token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatal("expected a session cookie")
	}

	rec = postJSON(t, mux, "/auth/link/verify", `{"token":"`+token+`x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token status = %d, want 401", rec.Code)
	}
}

func TestLinkVerifyGrantsNoInviteBonus(t *testing.T) {
	t.Parallel()

	mux, authSvc, ledgerSvc := newTestAuthMux(t)
	token, err := authSvc.IssueLinkToken("user@example.com", "FRIEND-42")
	if err != nil {
		t.Fatalf("IssueLinkToken error: %v", err)
	}

	// The link is replayable until expiry, so its invitation code must be
	// ignored; only the one-time code path may claim the bonus.
	rec := postJSON(t, mux, "/auth/link/verify", `{"token":"`+token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.SessionResponseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Credits != 10 {
		t.Fatalf("credits = %d, want 10 (no bonus on the link path)", resp.Credits)
	}

	account, err := ledgerSvc.GetBalance(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if account.Credits != 10 || account.InviteUsed {
		t.Fatalf("account = %+v, want 10 credits and an unclaimed bonus", account)
	}

	// The bonus stays claimable through the code path afterwards.
	ch, err := authSvc.IssueChallenge(context.Background(), "user@example.com", "FRIEND-42")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}
	rec = postJSON(t, mux, "/auth/verify", `{"email":"user@example.com","code":"`+ch.Code+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	account, err = ledgerSvc.GetBalance(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if account.Credits != 30 {
		t.Fatalf("credits = %d, want 30 after the code-path claim", account.Credits)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestAuthMux(t)
	rec := postJSON(t, mux, "/auth/logout", ``)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("cookies = %+v, want a clearing cookie", cookies)
	}
}
