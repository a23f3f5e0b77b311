package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/model"
	"app/internal/repository"
)

type captureMailer struct {
	sent    []MailMessage
	sendErr error
}

func (m *captureMailer) Send(_ context.Context, msg MailMessage) error {
	m.sent = append(m.sent, msg)
	return m.sendErr
}

func testAuthConfig() *config.Config {
	return &config.Config{
		SessionSecret:   "test-secret",
		ChallengeTTLMin: 10,
		LinkTokenTTLMin: 15,
		AppBaseURL:      "https://boostugc.test",
	}
}

func newTestAuthService(mailer Mailer) (AuthService, repository.ChallengeRepository) {
	repo := repository.NewMemChallengeRepo()
	svc := NewAuthService(repo, mailer, testAuthConfig(), logger.New())
	return svc, repo
}

func TestVerifyCodeOneTimeUse(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})
	ctx := context.Background()

	ch, err := svc.IssueChallenge(ctx, "User@Example.com", "")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	email, _, err := svc.VerifyCode(ctx, "user@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("email = %q, want normalized form", email)
	}

	// Replaying the consumed code must fail.
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", ch.Code); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on replay, got %v", err)
	}
}

func TestVerifyCodeLockout(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})
	ctx := context.Background()

	ch, err := svc.IssueChallenge(ctx, "user@example.com", "")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	for i := 0; i < model.MaxChallengeAttempts; i++ {
		if _, _, err := svc.VerifyCode(ctx, "user@example.com", "000000"); !errors.Is(err, ErrChallengeNotFound) {
			t.Fatalf("attempt %d: expected ErrChallengeNotFound, got %v", i+1, err)
		}
	}

	// The correct code no longer works once the ceiling is reached.
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", ch.Code); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	// The lockout consumed the challenge entirely.
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", ch.Code); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after lockout, got %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	t.Parallel()

	svc, repo := newTestAuthService(&captureMailer{})
	ctx := context.Background()

	err := repo.Put(ctx, &model.AuthChallenge{
		Email:     "user@example.com",
		Code:      "123456",
		IssuedAt:  time.Now().Add(-20 * time.Minute),
		ExpiresAt: time.Now().Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if _, _, err := svc.VerifyCode(ctx, "user@example.com", "123456"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	// Expired challenges are deleted on contact.
	ch, err := repo.Get(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ch != nil {
		t.Fatal("expired challenge should have been deleted")
	}
}

func TestIssueChallengeSupersedes(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})
	ctx := context.Background()

	first, err := svc.IssueChallenge(ctx, "user@example.com", "")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}
	second, err := svc.IssueChallenge(ctx, "user@example.com", "")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	if first.Code == second.Code {
		t.Skip("codes collided; re-run")
	}
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", first.Code); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("superseded code should fail, got %v", err)
	}

	// A wrong attempt counts against the new challenge, not the old one's
	// counter.
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", second.Code); err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
}

func TestIssueChallengeDeliveryUnconfirmed(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{sendErr: ErrDeliveryUnconfirmed}
	svc, _ := newTestAuthService(mailer)
	ctx := context.Background()

	ch, err := svc.IssueChallenge(ctx, "user@example.com", "")
	if !errors.Is(err, ErrDeliveryUnconfirmed) {
		t.Fatalf("expected ErrDeliveryUnconfirmed, got %v", err)
	}
	if ch == nil {
		t.Fatal("challenge must survive an unconfirmed delivery")
	}

	// The stored challenge stays verifiable.
	if _, _, err := svc.VerifyCode(ctx, "user@example.com", ch.Code); err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
}

func TestInvitationCodeCarried(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})
	ctx := context.Background()

	ch, err := svc.IssueChallenge(ctx, "user@example.com", "FRIEND-42")
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}
	_, invite, err := svc.VerifyCode(ctx, "user@example.com", ch.Code)
	if err != nil {
		t.Fatalf("VerifyCode error: %v", err)
	}
	if invite != "FRIEND-42" {
		t.Fatalf("invite = %q, want FRIEND-42", invite)
	}
}

func TestLinkTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})

	token, err := svc.IssueLinkToken("User@Example.com", "FRIEND-42")
	if err != nil {
		t.Fatalf("IssueLinkToken error: %v", err)
	}
	email, invite, err := svc.VerifyLinkToken(token)
	if err != nil {
		t.Fatalf("VerifyLinkToken error: %v", err)
	}
	if email != "user@example.com" || invite != "FRIEND-42" {
		t.Fatalf("got (%q, %q)", email, invite)
	}

	// Link tokens are replayable until expiry, unlike codes.
	if _, _, err := svc.VerifyLinkToken(token); err != nil {
		t.Fatalf("VerifyLinkToken replay error: %v", err)
	}
}

func TestLinkTokenTampered(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService(&captureMailer{})
	token, err := svc.IssueLinkToken("user@example.com", "")
	if err != nil {
		t.Fatalf("IssueLinkToken error: %v", err)
	}

	if _, _, err := svc.VerifyLinkToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, _, err := svc.VerifyLinkToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	got, err := NormalizeEmail("  User@Example.COM ")
	if err != nil {
		t.Fatalf("NormalizeEmail error: %v", err)
	}
	if got != "user@example.com" {
		t.Fatalf("got %q", got)
	}

	for _, bad := range []string{"", "nope", "a@", "@b", "two@at@signs"} {
		if _, err := NormalizeEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("NormalizeEmail(%q): expected ErrInvalidEmail, got %v", bad, err)
		}
	}
}
