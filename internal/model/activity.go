package model

import "time"

// Activity record types.
const (
	ActivityLogin   = "login"
	ActivityImage   = "image"
	ActivityVideo   = "video"
	ActivityRefund  = "refund"
	ActivityInvite  = "invite"
	ActivityUpgrade = "upgrade"
	ActivityLogout  = "logout"
)

// ActivityLogCap bounds the per-user activity log; the oldest entries are
// evicted first.
const ActivityLogCap = 200

// ActivityRecord is one entry in a user's bounded activity log.
type ActivityRecord struct {
	ID        string         `db:"id" json:"id"`
	Email     string         `db:"email" json:"email"`
	Type      string         `db:"type" json:"type"`
	Timestamp time.Time      `db:"created_at" json:"timestamp"`
	Meta      map[string]any `db:"meta" json:"meta,omitempty"`
}
