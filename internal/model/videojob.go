package model

import "time"

// VideoJob is the queue payload for an asynchronous video generation
// request. Cost travels with the job so the worker can refund exactly what
// was debited at enqueue time, even if the configured price changes later.
type VideoJob struct {
	Email       string    `json:"email"`
	Prompt      string    `json:"prompt"`
	Cost        int       `json:"cost"`
	RequestedAt time.Time `json:"requestedAt"`
}
