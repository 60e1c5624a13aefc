// Package presence maintains the participant roster of a collaboration
// session from inbound protocol events.
package presence

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/internal/model"
)

// PaletteSize is the number of cursor colors the dashboard renders.
// Colors are assigned deterministically so a user keeps the same color
// across reconnects within a run.
const PaletteSize = 10

// DefaultActivityWindow is how long after their last event a participant
// still counts as active.
const DefaultActivityWindow = 60 * time.Second

// Tracker maintains the participant roster. Appliers tolerate out-of-order
// delivery: events for unknown users are dropped rather than failed, because
// a cursor_moved can arrive before the join is locally applied.
type Tracker struct {
	mu           sync.RWMutex
	clock        clockwork.Clock
	window       time.Duration
	participants map[string]*model.Participant
	order        []string
}

func NewTracker(clock clockwork.Clock, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &Tracker{
		clock:        clock,
		window:       window,
		participants: make(map[string]*model.Participant),
	}
}

// ApplyJoin inserts or replaces the roster entry for userID. A repeated join
// collapses into the existing entry: the identity fields are refreshed, the
// join-order slot and last known cursor are kept.
func (t *Tracker) ApplyJoin(userID, displayName, email, avatar string) model.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := model.Participant{
		UserID:         userID,
		DisplayName:    displayName,
		Email:          email,
		Avatar:         avatar,
		Color:          ColorFor(userID),
		LastActivityAt: t.clock.Now(),
	}

	if existing, ok := t.participants[userID]; ok {
		p.Cursor = existing.Cursor
	} else {
		t.order = append(t.order, userID)
	}
	t.participants[userID] = &p

	return p
}

// Load replaces the roster with a snapshot, preserving the given order.
// Colors are recomputed so they stay deterministic across clients.
func (t *Tracker) Load(participants []model.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.participants = make(map[string]*model.Participant, len(participants))
	t.order = t.order[:0]
	for _, p := range participants {
		p.Color = ColorFor(p.UserID)
		cp := p
		if _, ok := t.participants[p.UserID]; !ok {
			t.order = append(t.order, p.UserID)
		}
		t.participants[p.UserID] = &cp
	}
}

// ApplyLeave removes the participant. Unknown users are a no-op so replayed
// leave events stay idempotent.
func (t *Tracker) ApplyLeave(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.participants[userID]; !ok {
		return
	}
	delete(t.participants, userID)
	for i, id := range t.order {
		if id == userID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// ApplyCursorMove updates the cursor and activity time for an existing
// participant. A move for an unknown user is dropped: the message may have
// raced its own join across a reconnect boundary.
func (t *Tracker) ApplyCursorMove(userID string, x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.participants[userID]
	if !ok {
		return
	}
	p.Cursor = &model.Cursor{X: x, Y: y}
	p.LastActivityAt = t.clock.Now()
}

// Touch refreshes the activity time for userID, for events that carry no
// cursor position (selection changes, edits).
func (t *Tracker) Touch(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.participants[userID]; ok {
		p.LastActivityAt = t.clock.Now()
	}
}

// Get returns the participant for userID, if present.
func (t *Tracker) Get(userID string) (model.Participant, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.participants[userID]
	if !ok {
		return model.Participant{}, false
	}
	return *p, true
}

// IsActive reports whether userID showed activity within the tracker's window.
func (t *Tracker) IsActive(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.participants[userID]
	if !ok {
		return false
	}
	return p.ActiveWithin(t.clock.Now(), t.window)
}

// List returns all participants in join order.
func (t *Tracker) List() []model.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Participant, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.participants[id])
	}
	return out
}

// ListActive returns the participants currently within the activity window,
// in join order.
func (t *Tracker) ListActive() []model.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	out := make([]model.Participant, 0, len(t.order))
	for _, id := range t.order {
		if p := t.participants[id]; p.ActiveWithin(now, t.window) {
			out = append(out, *p)
		}
	}
	return out
}

// Reset clears the roster. Called when the local participant leaves.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.participants = make(map[string]*model.Participant)
	t.order = nil
}

// ColorFor hashes userID into the fixed palette. Deterministic: the same
// user always maps to the same color.
func ColorFor(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % PaletteSize)
}
