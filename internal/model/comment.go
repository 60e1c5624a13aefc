package model

import "time"

// Comment is a threaded, resolvable annotation on the workflow graph or on a
// single node. Threads are two levels deep: a top-level comment plus a flat,
// ordered reply list.
type Comment struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Position   *Cursor   `json:"position,omitempty"`
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	NodeID     string    `json:"node_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Content    string    `json:"content"`
	Replies    []Comment `json:"replies,omitempty"`
	Mentions   []string  `json:"mentions,omitempty"`
	Resolved   bool      `json:"resolved"`
}
