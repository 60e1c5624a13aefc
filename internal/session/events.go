package session

import (
	"encoding/json"

	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/transport"
)

type EventKind string

const (
	// EventParticipantJoined fires when another participant joins the
	// session. The dashboard shows it as a toast.
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	// EventConnectionState mirrors the transport state machine for the
	// connection-status indicator.
	EventConnectionState EventKind = "connection_state"
	// EventConnectionLost fires once when reconnection attempts are
	// exhausted; the session will not recover on its own.
	EventConnectionLost EventKind = "connection_lost"
)

// Event is a user-visible notification emitted by the coordinator.
type Event struct {
	Participant *model.Participant
	Kind        EventKind
	UserName    string
	State       transport.State
}

// GraphUpdate carries an authoritative node or edge payload to the
// graph-rendering layer. Exactly one of NodeID/EdgeID is set. The policy is
// last-writer-wins: the payload overwrites any local optimistic edit.
type GraphUpdate struct {
	NodeID string
	EdgeID string
	Data   json.RawMessage
}

// Hooks are the coordinator's outbound callbacks into the embedding UI.
// All hooks are optional and invoked serially, one message at a time.
type Hooks struct {
	OnEvent       func(Event)
	OnGraphUpdate func(GraphUpdate)
}
