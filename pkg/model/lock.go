package model

import "time"

// Lock describes one granted hold: a single owner over a set of units with a
// shared expiry.
type Lock struct {
	OwnerID   string    `json:"owner_id"`
	GroupID   string    `json:"group_id"`
	UnitIDs   []string  `json:"unit_ids"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// LockResult is the outcome of a lock attempt. When the request is denied,
// Conflicting names the subset of units that caused the denial, sorted.
type LockResult struct {
	Granted     bool      `json:"granted"`
	Conflicting []string  `json:"conflicting,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}
