package model

import "time"

// Plan identifies a subscription tier. The plan determines the credit
// allotment granted on (re)activation; it does not gate access by itself.
type Plan string

const (
	PlanNone          Plan = "none"
	PlanFree          Plan = "free"
	PlanCreatorMonth  Plan = "creator-monthly"
	PlanCreatorAnnual Plan = "creator-annual"
	PlanStudioMonth   Plan = "studio-monthly"
	PlanStudioAnnual  Plan = "studio-annual"
)

// Subscription status values mirrored from the payment provider.
const (
	SubStatusActive   = "active"
	SubStatusInactive = "inactive"
	SubStatusCanceled = "canceled"
)

// UserAccount is the per-email account row. Email is the primary key,
// normalized to lowercase. Credits never go negative: a debit that would
// overdraw is rejected whole.
type UserAccount struct {
	Email              string    `db:"email" json:"email"`
	Credits            int       `db:"credits" json:"credits"`
	Plan               Plan      `db:"plan" json:"plan"`
	SubscriptionStatus string    `db:"subscription_status" json:"subscription_status"`
	InviteUsed         bool      `db:"invite_used" json:"invite_used"`
	PaymentCustomerRef *string   `db:"payment_customer_ref" json:"payment_customer_ref,omitempty"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ValidPlan reports whether p is one of the known tiers.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanNone, PlanFree, PlanCreatorMonth, PlanCreatorAnnual, PlanStudioMonth, PlanStudioAnnual:
		return true
	}
	return false
}
