package service

import (
	"fmt"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// SessionService turns a verified email into a signed session cookie and
// decodes it back on each request. Sessions are stateless: the cookie is an
// HMAC-signed claim set, and the credits inside it are a display snapshot,
// never trusted for debits.
type SessionService interface {
	Create(email string, plan model.Plan, credits int) (*http.Cookie, error)
	// Read returns the session or nil for anonymous requests. An invalid or
	// expired cookie is treated the same as a missing one.
	Read(r *http.Request) *model.Session
	Destroy() *http.Cookie
}

type sessionClaims struct {
	Email   string     `json:"email"`
	Plan    model.Plan `json:"plan"`
	Credits int        `json:"credits"`
	jwt.RegisteredClaims
}

type sessionService struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewSessionService creates a SessionService from the configured signing
// secret and cookie parameters.
func NewSessionService(cfg *config.Config) SessionService {
	return &sessionService{
		secret:     []byte(cfg.SessionSecret),
		cookieName: cfg.SessionCookie,
		ttl:        time.Duration(cfg.SessionTTLDays) * 24 * time.Hour,
		secure:     cfg.SecureCookies,
	}
}

func (s *sessionService) Create(email string, plan model.Plan, credits int) (*http.Cookie, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email:   email,
		Plan:    plan,
		Credits: credits,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func (s *sessionService) Read(r *http.Request) *model.Session {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	sess := &model.Session{
		Email:   claims.Email,
		Plan:    claims.Plan,
		Credits: claims.Credits,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	return sess
}

func (s *sessionService) Destroy() *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
