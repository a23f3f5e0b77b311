package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/rs/zerolog"
)

type UserHandler struct {
	ledger service.LedgerService
	logger zerolog.Logger
}

func NewUserHandler(ledger service.LedgerService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		ledger: ledger,
		logger: logger.With().Str("handler", "UserHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 account routes.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /me", authMw(http.HandlerFunc(h.getMe)))
	mux.Handle("GET /me/activity", authMw(http.HandlerFunc(h.getActivity)))
}

// getMe returns the live account state. The session cookie's cached credits
// are deliberately ignored here; the ledger is the source of truth.
//
// @Summary Get the authenticated account
// @Tags account
// @Produce json
// @Success 200 {object} dto.MeResponseDTO
// @Router /v1/me [get]
func (h *UserHandler) getMe(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	account, err := h.ledger.GetBalance(r.Context(), sess.Email)
	if err != nil {
		http.Error(w, "Failed to load account: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dto.MeResponseDTO{
		Email:              account.Email,
		Plan:               string(account.Plan),
		Credits:            account.Credits,
		SubscriptionStatus: account.SubscriptionStatus,
		InviteUsed:         account.InviteUsed,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// getActivity lists the account's recent activity, most recent first.
//
// @Summary List account activity
// @Tags account
// @Produce json
// @Success 200 {array} dto.ActivityEntryDTO
// @Router /v1/me/activity [get]
func (h *UserHandler) getActivity(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	limit := model.ActivityLogCap
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err == nil && l > 0 && l < limit {
			limit = l
		}
	}

	records, err := h.ledger.ListActivity(r.Context(), sess.Email, limit)
	if err != nil {
		http.Error(w, "Failed to load activity: "+err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]dto.ActivityEntryDTO, 0, len(records))
	for _, rec := range records {
		entries = append(entries, dto.ActivityEntryDTO{
			ID:        rec.ID,
			Type:      rec.Type,
			Timestamp: rec.Timestamp,
			Meta:      rec.Meta,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
