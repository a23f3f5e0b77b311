package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type BillingHandler struct {
	billing  *service.BillingService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewBillingHandler(billing *service.BillingService, v *validator.Validate, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:  billing,
		validate: v,
		logger:   logger.With().Str("handler", "BillingHandler").Logger(),
	}
}

// RegisterRoutes mounts v1 billing routes. The webhook route takes no auth
// middleware; the Stripe signature is its authentication.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /billing/checkout", authMw(http.HandlerFunc(h.checkout)))
	mux.Handle("GET /billing/portal", authMw(http.HandlerFunc(h.portal)))
	mux.HandleFunc("POST /billing/webhook", h.billing.HandleWebhook)
}

// checkout starts a subscription purchase and returns the hosted page URL.
//
// @Summary Start a plan checkout
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} dto.RedirectResponseDTO
// @Router /v1/billing/checkout [post]
func (h *BillingHandler) checkout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	plan := model.Plan(req.Plan)
	if !model.ValidPlan(plan) || plan == model.PlanFree || plan == model.PlanNone {
		http.Error(w, "plan is not purchasable: "+req.Plan, http.StatusBadRequest)
		return
	}

	url, err := h.billing.CreateCheckoutSession(r.Context(), sess.Email, plan)
	if err != nil {
		http.Error(w, "Failed to create checkout session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.RedirectResponseDTO{URL: url})
}

// portal returns a customer portal URL for subscription management.
//
// @Summary Open the billing portal
// @Tags billing
// @Produce json
// @Success 200 {object} dto.RedirectResponseDTO
// @Router /v1/billing/portal [get]
func (h *BillingHandler) portal(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "Unauthorized: session not found in context", http.StatusUnauthorized)
		return
	}

	url, err := h.billing.CreatePortalSession(r.Context(), sess.Email)
	if err != nil {
		http.Error(w, "Failed to create portal session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.RedirectResponseDTO{URL: url})
}
