package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type AdminHandler struct {
	ledger   service.LedgerService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewAdminHandler(ledger service.LedgerService, v *validator.Validate, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		validate: v,
		logger:   logger.With().Str("handler", "AdminHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 admin routes behind both middlewares.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/credits", authMw(adminMw(http.HandlerFunc(h.adjustCredits))))
}

// adjustCredits grants extra credits or resets a balance to the account's
// current plan allotment.
//
// @Summary Adjust an account's credits
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} dto.AdminCreditsResponseDTO
// @Router /v1/admin/credits [post]
func (h *AdminHandler) adjustCredits(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminCreditsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "grant":
		remaining, err := h.ledger.Credit(r.Context(), req.Email, req.Amount, model.ActivityUpgrade)
		if err != nil {
			http.Error(w, "Failed to grant credits: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.logger.Info().Str("email", req.Email).Int("amount", req.Amount).Msg("Admin credit grant")
		h.writeBalance(w, req.Email, remaining)
	case "reset":
		account, err := h.ledger.GetBalance(r.Context(), req.Email)
		if err != nil {
			http.Error(w, "Failed to load account: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := h.ledger.ApplyPlan(r.Context(), req.Email, account.Plan, account.SubscriptionStatus, ""); err != nil {
			http.Error(w, "Failed to reset balance: "+err.Error(), http.StatusInternalServerError)
			return
		}
		account, err = h.ledger.GetBalance(r.Context(), req.Email)
		if err != nil {
			http.Error(w, "Failed to load account: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.logger.Info().Str("email", req.Email).Int("credits", account.Credits).Msg("Admin balance reset")
		h.writeBalance(w, req.Email, account.Credits)
	default:
		http.Error(w, "unknown action: "+req.Action, http.StatusBadRequest)
	}
}

func (h *AdminHandler) writeBalance(w http.ResponseWriter, email string, credits int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.AdminCreditsResponseDTO{Email: email, Credits: credits})
}
