package service

import (
	"strings"

	"app/internal/config"
)

// Authorizer answers whether an authenticated account may use the admin
// surface. Membership is a static allow-list from configuration; there are
// no roles beyond admin / not-admin.
type Authorizer struct {
	admins map[string]struct{}
}

// NewAuthorizer parses the comma-separated admin allow-list.
func NewAuthorizer(cfg *config.Config) *Authorizer {
	admins := make(map[string]struct{})
	for _, raw := range strings.Split(cfg.AdminEmails, ",") {
		email, err := NormalizeEmail(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		admins[email] = struct{}{}
	}
	return &Authorizer{admins: admins}
}

// IsAdmin reports whether the email is on the allow-list. Unknown or
// malformed emails are simply not admins.
func (a *Authorizer) IsAdmin(email string) bool {
	email, err := NormalizeEmail(email)
	if err != nil {
		return false
	}
	_, ok := a.admins[email]
	return ok
}
