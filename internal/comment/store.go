// Package comment maintains the threaded annotations of a collaboration
// session. Threads are two levels deep: ordered top-level comments, each with
// an ordered flat reply list.
//
// The store holds acknowledged state. Creation and mutation round-trip
// through the persistence API first; the coordinator applies the returned
// comment here once the server acknowledges it.
package comment

import (
	"errors"
	"sync"

	"autoflow.app/collab/internal/model"
)

// ErrParentNotFound is returned by Reply when the target thread is gone,
// e.g. deleted by another participant before the reply arrived.
var ErrParentNotFound = errors.New("parent comment not found")

// Store holds the comment threads for one session.
type Store struct {
	mu       sync.RWMutex
	comments []model.Comment
}

func NewStore() *Store {
	return &Store{}
}

// Load replaces all threads with the snapshot fetched at join time.
func (s *Store) Load(comments []model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append([]model.Comment(nil), comments...)
}

// Add appends an acknowledged comment, preserving arrival order.
func (s *Store) Add(c model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, c)
}

// Update replaces the content of the comment or reply with the given ID.
// Unknown IDs are a no-op so replayed updates stay idempotent.
func (s *Store) Update(updated model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.find(updated.ID); c != nil {
		c.Content = updated.Content
		c.UpdatedAt = updated.UpdatedAt
		c.Mentions = updated.Mentions
	}
}

// Resolve marks the thread with the given ID resolved. Unknown IDs are a no-op.
func (s *Store) Resolve(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.find(id); c != nil {
		c.Resolved = true
	}
}

// Delete removes the comment or reply with the given ID. Unknown IDs are a
// no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.comments {
		if s.comments[i].ID == id {
			s.comments = append(s.comments[:i], s.comments[i+1:]...)
			return
		}
		replies := s.comments[i].Replies
		for j := range replies {
			if replies[j].ID == id {
				s.comments[i].Replies = append(replies[:j], replies[j+1:]...)
				return
			}
		}
	}
}

// Reply appends an acknowledged reply to its parent thread, preserving
// arrival order. Fails if the parent no longer exists; the caller surfaces
// that to the user rather than silently dropping the reply.
func (s *Store) Reply(parentID string, reply model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.comments {
		if s.comments[i].ID == parentID {
			s.comments[i].Replies = append(s.comments[i].Replies, reply)
			return nil
		}
	}
	return ErrParentNotFound
}

// Get returns the comment or reply with the given ID.
func (s *Store) Get(id string) (model.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c := s.find(id); c != nil {
		return *c, true
	}
	return model.Comment{}, false
}

// List returns all threads in arrival order.
func (s *Store) List() []model.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Comment(nil), s.comments...)
}

// ListForNode returns the threads attached to one graph node, in arrival order.
func (s *Store) ListForNode(nodeID string) []model.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Comment
	for _, c := range s.comments {
		if c.NodeID == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all threads. Called when the local participant leaves.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = nil
}

// find locates a comment or reply by ID. Caller holds the lock.
func (s *Store) find(id string) *model.Comment {
	for i := range s.comments {
		if s.comments[i].ID == id {
			return &s.comments[i]
		}
		for j := range s.comments[i].Replies {
			if s.comments[i].Replies[j].ID == id {
				return &s.comments[i].Replies[j]
			}
		}
	}
	return nil
}
