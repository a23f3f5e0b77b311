package dto

// AdminCreditsDTO grants credits to, or resets, an account's balance.
type AdminCreditsDTO struct {
	Email  string `json:"email" validate:"required,email"`
	Action string `json:"action" validate:"required,oneof=grant reset"`
	Amount int    `json:"amount" validate:"gte=0"`
}

// AdminCreditsResponseDTO is the balance after an admin mutation.
type AdminCreditsResponseDTO struct {
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}
