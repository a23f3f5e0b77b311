package dto

// RequestCodeDTO asks for a login code to be mailed.
type RequestCodeDTO struct {
	Email          string `json:"email" validate:"required,email"`
	InvitationCode string `json:"invitation_code,omitempty"`
}

// VerifyCodeDTO submits a mailed login code.
type VerifyCodeDTO struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyLinkDTO submits a legacy magic-link token.
type VerifyLinkDTO struct {
	Token string `json:"token" validate:"required"`
}

// SessionResponseDTO is returned after a successful login.
type SessionResponseDTO struct {
	Email   string `json:"email"`
	Plan    string `json:"plan"`
	Credits int    `json:"credits"`
}
