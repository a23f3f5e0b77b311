package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type AuthHandler struct {
	authService service.AuthService
	sessions    service.SessionService
	ledger      service.LedgerService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewAuthHandler(authService service.AuthService, sessions service.SessionService, ledger service.LedgerService, v *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		ledger:      ledger,
		validate:    v,
		logger:      logger.With().Str("handler", "AuthHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 auth routes. None of them require an existing
// session.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/request-code", h.requestCode)
	mux.HandleFunc("POST /auth/verify", h.verifyCode)
	mux.HandleFunc("POST /auth/link/request", h.requestLink)
	mux.HandleFunc("POST /auth/link/verify", h.verifyLink)
	mux.HandleFunc("POST /auth/logout", h.logout)
}

// requestCode issues a 6-digit login code and mails it.
//
// @Summary Request a login code
// @Tags auth
// @Accept json
// @Success 202
// @Router /v1/auth/request-code [post]
func (h *AuthHandler) requestCode(w http.ResponseWriter, r *http.Request) {
	var req dto.RequestCodeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, err := h.authService.IssueChallenge(r.Context(), req.Email, req.InvitationCode)
	if err != nil && !errors.Is(err, service.ErrDeliveryUnconfirmed) {
		if errors.Is(err, service.ErrInvalidEmail) {
			http.Error(w, "invalid email address", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to issue login code", http.StatusInternalServerError)
		return
	}
	// 202 either way: an unconfirmed delivery still left a verifiable
	// challenge, and the response must not reveal whether the address is
	// known.
	w.WriteHeader(http.StatusAccepted)
}

// verifyCode exchanges a mailed code for a session cookie.
//
// @Summary Verify a login code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} dto.SessionResponseDTO
// @Router /v1/auth/verify [post]
func (h *AuthHandler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyCodeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	email, inviteCode, err := h.authService.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.establishSession(w, r, email, inviteCode)
}

// requestLink mails a legacy magic-link token.
func (h *AuthHandler) requestLink(w http.ResponseWriter, r *http.Request) {
	var req dto.RequestCodeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.authService.IssueLinkMail(r.Context(), req.Email, req.InvitationCode); err != nil && !errors.Is(err, service.ErrDeliveryUnconfirmed) {
		if errors.Is(err, service.ErrInvalidEmail) {
			http.Error(w, "invalid email address", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to issue login link", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// verifyLink exchanges a magic-link token for a session cookie.
func (h *AuthHandler) verifyLink(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyLinkDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	// The legacy link is replayable until expiry, so it must never carry a
	// bonus grant; only the one-time code path does.
	email, _, err := h.authService.VerifyLinkToken(req.Token)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.establishSession(w, r, email, "")
}

// logout clears the session cookie and records the event when the cookie
// was still valid.
//
// @Summary Log out
// @Tags auth
// @Success 204
// @Router /v1/auth/logout [post]
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := h.sessions.Read(r); sess != nil {
		if err := h.ledger.RecordLogout(r.Context(), sess.Email); err != nil {
			h.logger.Error().Err(err).Str("email", sess.Email).Msg("Failed to record logout")
		}
	}
	http.SetCookie(w, h.sessions.Destroy())
	w.WriteHeader(http.StatusNoContent)
}

// establishSession finishes both login flows: materialize the account,
// claim any invitation bonus, record the login and set the cookie.
func (h *AuthHandler) establishSession(w http.ResponseWriter, r *http.Request, email, inviteCode string) {
	account, err := h.ledger.GetBalance(r.Context(), email)
	if err != nil {
		http.Error(w, "failed to load account", http.StatusInternalServerError)
		return
	}
	if inviteCode != "" {
		remaining, claimed, err := h.ledger.GrantInviteBonus(r.Context(), email)
		if err != nil {
			h.logger.Error().Err(err).Str("email", email).Msg("Failed to grant invitation bonus")
		} else if claimed {
			account.Credits = remaining
		}
	}
	if err := h.ledger.RecordLogin(r.Context(), email); err != nil {
		h.logger.Error().Err(err).Str("email", email).Msg("Failed to record login")
	}

	cookie, err := h.sessions.Create(email, account.Plan, account.Credits)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, cookie)

	resp := dto.SessionResponseDTO{
		Email:   email,
		Plan:    string(account.Plan),
		Credits: account.Credits,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		http.Error(w, "invalid email address", http.StatusBadRequest)
	case errors.Is(err, service.ErrChallengeNotFound):
		http.Error(w, "invalid code", http.StatusUnauthorized)
	case errors.Is(err, service.ErrChallengeExpired):
		http.Error(w, "code expired, request a new one", http.StatusUnauthorized)
	case errors.Is(err, service.ErrTooManyAttempts):
		http.Error(w, "too many attempts, request a new code", http.StatusTooManyRequests)
	case errors.Is(err, service.ErrInvalidToken):
		http.Error(w, "invalid or expired link", http.StatusUnauthorized)
	default:
		http.Error(w, "login failed", http.StatusInternalServerError)
	}
}
