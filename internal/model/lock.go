package model

import "time"

// NodeLock is a time-bounded exclusive claim on a single graph node.
// At most one live lock exists per node; the server is the source of truth
// for ownership.
type NodeLock struct {
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	NodeID     string    `json:"node_id"`
	HolderID   string    `json:"holder_id"`
	HolderName string    `json:"holder_name"`
}

// Live reports whether the lock is still in force at the given instant.
// A lock past its expiry is treated as absent even if no unlock was seen.
func (l NodeLock) Live(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}
