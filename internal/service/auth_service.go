package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidEmail rejects malformed addresses before any side effect.
	ErrInvalidEmail = errors.New("invalid_email")
	// ErrChallengeNotFound means no pending challenge exists for the email.
	ErrChallengeNotFound = errors.New("challenge_not_found")
	// ErrChallengeExpired means the challenge TTL elapsed; it has been
	// deleted and the user must restart the flow.
	ErrChallengeExpired = errors.New("challenge_expired")
	// ErrTooManyAttempts means the challenge was invalidated after too many
	// wrong codes.
	ErrTooManyAttempts = errors.New("too_many_attempts")
	// ErrInvalidToken covers tampered or expired magic-link tokens.
	ErrInvalidToken = errors.New("invalid_token")
)

// AuthService issues and verifies passwordless login challenges. The
// server-stored 6-digit code is the primary, replay-safe flow; the signed
// magic-link token is a stateless legacy path that stays replayable until
// expiry.
type AuthService interface {
	// IssueChallenge creates a code challenge and dispatches it by mail.
	// A challenge superseding any prior one is stored even when delivery
	// cannot be confirmed; in that case the returned error wraps
	// ErrDeliveryUnconfirmed and the challenge remains verifiable.
	IssueChallenge(ctx context.Context, email, invitationCode string) (*model.AuthChallenge, error)
	// VerifyCode checks a submitted code. On success the challenge is
	// deleted (one-time use) and the normalized email plus any invitation
	// code are returned.
	VerifyCode(ctx context.Context, email, code string) (string, string, error)
	// IssueLinkToken mints a signed magic-link token for the email.
	IssueLinkToken(email, invitationCode string) (string, error)
	// IssueLinkMail mints a magic-link token and dispatches the login link
	// by mail. Same delivery semantics as IssueChallenge.
	IssueLinkMail(ctx context.Context, email, invitationCode string) error
	// VerifyLinkToken validates a magic-link token and returns the email
	// and invitation code embedded in it.
	VerifyLinkToken(token string) (string, string, error)
}

type linkClaims struct {
	Email          string `json:"email"`
	InvitationCode string `json:"invitation_code,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	challenges   repository.ChallengeRepository
	mailer       Mailer
	secret       []byte
	challengeTTL time.Duration
	linkTTL      time.Duration
	appBaseURL   string
	logger       zerolog.Logger
}

// NewAuthService creates an AuthService with a scoped logger.
func NewAuthService(challenges repository.ChallengeRepository, mailer Mailer, cfg *config.Config, logger zerolog.Logger) AuthService {
	return &authService{
		challenges:   challenges,
		mailer:       mailer,
		secret:       []byte(cfg.SessionSecret),
		challengeTTL: time.Duration(cfg.ChallengeTTLMin) * time.Minute,
		linkTTL:      time.Duration(cfg.LinkTokenTTLMin) * time.Minute,
		appBaseURL:   cfg.AppBaseURL,
		logger:       logger.With().Str("service", "AuthService").Logger(),
	}
}

// NormalizeEmail lowercases and validates an address. All stores key on the
// normalized form.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate login code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *authService) IssueChallenge(ctx context.Context, email, invitationCode string) (*model.AuthChallenge, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ch := &model.AuthChallenge{
		Email:          email,
		Code:           code,
		InvitationCode: invitationCode,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.challengeTTL),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return nil, err
	}
	msg := MailMessage{
		To:      email,
		Subject: "Your BoostUGC login code",
		HTML:    fmt.Sprintf("<p>Your login code is <strong>%s</strong>. It expires in %d minutes.</p>", code, int(s.challengeTTL.Minutes())),
		Text:    fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(s.challengeTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrDeliveryUnconfirmed) {
			s.logger.Warn().Str("email", email).Msg("Login code stored but delivery unconfirmed")
			return ch, err
		}
		return nil, err
	}
	return ch, nil
}

func (s *authService) VerifyCode(ctx context.Context, email, code string) (string, string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", "", err
	}
	ch, err := s.challenges.Get(ctx, email)
	if err != nil {
		return "", "", err
	}
	if ch == nil {
		return "", "", ErrChallengeNotFound
	}
	if ch.Expired(time.Now()) {
		if err := s.challenges.Delete(ctx, email); err != nil {
			return "", "", err
		}
		return "", "", ErrChallengeExpired
	}
	// The attempt ceiling is checked before the code comparison, so a
	// locked-out challenge rejects even the correct code.
	if ch.Attempts >= model.MaxChallengeAttempts {
		if err := s.challenges.Delete(ctx, email); err != nil {
			return "", "", err
		}
		return "", "", ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		if _, err := s.challenges.IncrementAttempts(ctx, email); err != nil {
			return "", "", err
		}
		return "", "", ErrChallengeNotFound
	}
	// One-time use: consume on success.
	if err := s.challenges.Delete(ctx, email); err != nil {
		return "", "", err
	}
	return email, ch.InvitationCode, nil
}

func (s *authService) IssueLinkToken(email, invitationCode string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, linkClaims{
		Email:          email,
		InvitationCode: invitationCode,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.linkTTL)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *authService) IssueLinkMail(ctx context.Context, email, invitationCode string) error {
	token, err := s.IssueLinkToken(email, invitationCode)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/login?token=%s", s.appBaseURL, token)
	msg := MailMessage{
		To:      strings.ToLower(strings.TrimSpace(email)),
		Subject: "Your BoostUGC login link",
		HTML:    fmt.Sprintf("<p><a href=%q>Click here to log in</a>. The link expires in %d minutes.</p>", link, int(s.linkTTL.Minutes())),
		Text:    fmt.Sprintf("Log in: %s (expires in %d minutes)", link, int(s.linkTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrDeliveryUnconfirmed) {
			s.logger.Warn().Str("email", msg.To).Msg("Login link issued but delivery unconfirmed")
			return err
		}
		return err
	}
	return nil
}

func (s *authService) VerifyLinkToken(tokenString string) (string, string, error) {
	claims := &linkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	return claims.Email, claims.InvitationCode, nil
}
