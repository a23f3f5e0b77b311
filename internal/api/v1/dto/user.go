package dto

import "time"

// MeResponseDTO is the authenticated account view.
type MeResponseDTO struct {
	Email              string `json:"email"`
	Plan               string `json:"plan"`
	Credits            int    `json:"credits"`
	SubscriptionStatus string `json:"subscription_status"`
	InviteUsed         bool   `json:"invite_used"`
}

// ActivityEntryDTO is one activity log entry in API responses.
type ActivityEntryDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}
