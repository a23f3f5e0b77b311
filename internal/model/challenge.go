package model

import "time"

// MaxChallengeAttempts is the number of wrong codes allowed before a
// challenge is invalidated.
const MaxChallengeAttempts = 5

// AuthChallenge is a pending login code for one email. A new challenge
// supersedes any prior one for the same address; a challenge is deleted on
// successful verification, on expiry, or after too many failed attempts.
type AuthChallenge struct {
	Email          string    `db:"email" json:"email"`
	Code           string    `db:"code" json:"-"`
	InvitationCode string    `db:"invitation_code" json:"invitation_code,omitempty"`
	Attempts       int       `db:"attempts" json:"attempts"`
	IssuedAt       time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the challenge TTL has elapsed at time now.
func (c *AuthChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
