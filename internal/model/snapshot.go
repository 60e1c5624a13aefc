package model

// Snapshot is the initial session state fetched over REST at join time:
// the session record plus its participants, comment threads, and live locks.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	Comments     []Comment     `json:"comments"`
	Locks        []NodeLock    `json:"locks"`
}
