package model

import "time"

// Session is the shared real-time context for one workflow document.
type Session struct {
	CreatedAt  time.Time `json:"created_at"`
	SessionID  string    `json:"session_id"`
	WorkflowID string    `json:"workflow_id"`
	IsActive   bool      `json:"is_active"`
}

// Cursor is a participant's pointer position on the workflow canvas.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one connected user identity within a session.
type Participant struct {
	LastActivityAt time.Time `json:"last_activity_at"`
	Cursor         *Cursor   `json:"cursor,omitempty"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Email          string    `json:"email"`
	Avatar         string    `json:"avatar,omitempty"`
	Color          int       `json:"color"`
}

// ActiveWithin reports whether the participant showed activity inside the
// given window ending at now.
func (p Participant) ActiveWithin(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastActivityAt) < window
}

// Identity is the opaque identity the embedding application supplies at join
// time. Authentication happens elsewhere; the collaboration core only carries
// these fields through the protocol.
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
	Avatar      string
}

// Valid reports whether the identity can be used to join a session.
func (i Identity) Valid() bool {
	return i.UserID != ""
}
