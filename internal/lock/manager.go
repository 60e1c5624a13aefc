// Package lock tracks exclusive editing locks on workflow graph nodes.
//
// The client-side manager is a cache over the authoritative server state:
// it never grants a lock locally, it only applies node_locked/node_unlocked
// events from the stream. Expiry is lazy — an expired entry is treated as
// absent at read time, so a disconnected holder cannot block others even if
// its unlock never arrives.
package lock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/internal/model"
)

// DefaultTTL is how long a granted lock stays live without renewal.
const DefaultTTL = 30 * time.Second

// Manager holds the live lock table for one session.
type Manager struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	locks map[string]model.NodeLock
}

func NewManager(clock clockwork.Clock) *Manager {
	return &Manager{
		clock: clock,
		locks: make(map[string]model.NodeLock),
	}
}

// ApplyLocked records an authoritative grant. Last writer wins: the server
// is the single source of truth for ownership, so any existing entry for the
// node is replaced.
func (m *Manager) ApplyLocked(l model.NodeLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[l.NodeID] = l
}

// ApplyUnlocked removes the entry for nodeID. Unknown nodes are a no-op.
func (m *Manager) ApplyUnlocked(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, nodeID)
}

// IsLocked reports whether a live lock exists for nodeID.
func (m *Manager) IsLocked(nodeID string) bool {
	_, ok := m.Get(nodeID)
	return ok
}

// IsLockedBy reports whether userID holds a live lock on nodeID.
func (m *Manager) IsLockedBy(nodeID, userID string) bool {
	l, ok := m.Get(nodeID)
	return ok && l.HolderID == userID
}

// Get returns the live lock for nodeID. An entry past its expiry is dropped
// from the table and reported as absent.
func (m *Manager) Get(nodeID string) (model.NodeLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[nodeID]
	if !ok {
		return model.NodeLock{}, false
	}
	if !l.Live(m.clock.Now()) {
		delete(m.locks, nodeID)
		return model.NodeLock{}, false
	}
	return l, true
}

// List returns all live locks.
func (m *Manager) List() []model.NodeLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	out := make([]model.NodeLock, 0, len(m.locks))
	for id, l := range m.locks {
		if !l.Live(now) {
			delete(m.locks, id)
			continue
		}
		out = append(out, l)
	}
	return out
}

// ReleaseHeldBy removes every lock held by userID and returns the affected
// node IDs. Used when a holder disconnects.
func (m *Manager) ReleaseHeldBy(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []string
	for id, l := range m.locks {
		if l.HolderID == userID {
			delete(m.locks, id)
			released = append(released, id)
		}
	}
	return released
}

// Reset clears the lock table. Called when the local participant leaves.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]model.NodeLock)
}
