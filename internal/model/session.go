package model

import "time"

// Session is the decoded view of a signed session cookie. Credits is a
// snapshot taken at issue time, not the source of truth; credit-sensitive
// handlers must re-read the ledger.
type Session struct {
	Email    string    `json:"email"`
	Plan     Plan      `json:"plan"`
	Credits  int       `json:"credits"`
	IssuedAt time.Time `json:"issued_at"`
}
