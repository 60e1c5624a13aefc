// Package protocol defines the JSON wire protocol spoken over the
// collaboration socket. Every frame is a flat object tagged by "type";
// payload structs embed the tag so a frame marshals in one step.
package protocol

import (
	"encoding/json"
	"fmt"
)

type Type string

// Client-to-server message types.
const (
	TypeJoin            Type = "join"
	TypeLeave           Type = "leave"
	TypeCursorMove      Type = "cursor_move"
	TypeNodeUpdate      Type = "node_update"
	TypeEdgeUpdate      Type = "edge_update"
	TypeSelectionChange Type = "selection_change"
	TypeLockNode        Type = "lock_node"
	TypeUnlockNode      Type = "unlock_node"
	TypeHeartbeat       Type = "heartbeat"
)

// Server-to-client message types.
const (
	TypeUserJoined   Type = "user_joined"
	TypeUserLeft     Type = "user_left"
	TypeCursorMoved  Type = "cursor_moved"
	TypeNodeUpdated  Type = "node_updated"
	TypeEdgeUpdated  Type = "edge_updated"
	TypeNodeLocked   Type = "node_locked"
	TypeNodeUnlocked Type = "node_unlocked"
)

type Join struct {
	Type       Type   `json:"type"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserEmail  string `json:"userEmail"`
	WorkflowID string `json:"workflowId"`
}

type Leave struct {
	Type   Type   `json:"type"`
	UserID string `json:"userId"`
}

type CursorMove struct {
	Type   Type    `json:"type"`
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type NodeUpdate struct {
	Type     Type            `json:"type"`
	UserID   string          `json:"userId"`
	NodeID   string          `json:"nodeId"`
	NodeData json.RawMessage `json:"nodeData"`
}

type EdgeUpdate struct {
	Type     Type            `json:"type"`
	UserID   string          `json:"userId"`
	EdgeID   string          `json:"edgeId"`
	EdgeData json.RawMessage `json:"edgeData"`
}

type SelectionChange struct {
	Type          Type     `json:"type"`
	UserID        string   `json:"userId"`
	SelectedNodes []string `json:"selectedNodes"`
	SelectedEdges []string `json:"selectedEdges"`
}

type LockNode struct {
	Type     Type   `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	NodeID   string `json:"nodeId"`
}

type UnlockNode struct {
	Type   Type   `json:"type"`
	UserID string `json:"userId"`
	NodeID string `json:"nodeId"`
}

type Heartbeat struct {
	Type Type `json:"type"`
}

type UserJoined struct {
	Type       Type   `json:"type"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserEmail  string `json:"userEmail"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

type UserLeft struct {
	Type     Type   `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type CursorMoved struct {
	Type   Type    `json:"type"`
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type NodeUpdated struct {
	Type     Type            `json:"type"`
	NodeID   string          `json:"nodeId"`
	NodeData json.RawMessage `json:"nodeData"`
}

type EdgeUpdated struct {
	Type     Type            `json:"type"`
	EdgeID   string          `json:"edgeId"`
	EdgeData json.RawMessage `json:"edgeData"`
}

type NodeLocked struct {
	Type     Type   `json:"type"`
	NodeID   string `json:"nodeId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	// Millisecond unix timestamps, matching the dashboard's clock format.
	LockedAt  int64 `json:"lockedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

type NodeUnlocked struct {
	Type   Type   `json:"type"`
	NodeID string `json:"nodeId"`
}

// envelope extracts only the tag; the full frame is re-decoded into the
// payload struct for its type.
type envelope struct {
	Type Type `json:"type"`
}

// PeekType returns the message type of a raw frame without decoding the rest.
func PeekType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decoding message envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message has no type")
	}
	return env.Type, nil
}

// Decode unmarshals a raw frame into the payload struct for its type.
func Decode(data []byte, msg any) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// Encode marshals a payload struct into a wire frame.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}
