package dto

// CheckoutRequestDTO starts a subscription purchase.
type CheckoutRequestDTO struct {
	Plan string `json:"plan" validate:"required"`
}

// RedirectResponseDTO carries a provider-hosted page URL the client should
// navigate to.
type RedirectResponseDTO struct {
	URL string `json:"url"`
}
