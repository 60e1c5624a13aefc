// Package hub hosts the authoritative side of the collaboration protocol:
// one goroutine per workflow session owns presence, cursor fan-out and node
// lock grants for every connected dashboard.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/core/config"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/store"
)

const reapInterval = time.Minute

// Hub tracks the live collaboration sessions, one per workflow.
type Hub struct {
	cfg      config.CollabConfig
	clock    clockwork.Clock
	sessions store.SessionStore
	upgrader websocket.Upgrader

	mu     sync.Mutex
	active map[string]*Session
}

func New(cfg config.CollabConfig, clock clockwork.Clock, sessions store.SessionStore) *Hub {
	return &Hub{
		cfg:      cfg,
		clock:    clock,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth happens upstream; the dashboard origin is not fixed
			// across deployments.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		active: make(map[string]*Session),
	}
}

// Serve upgrades an HTTP request to a websocket and attaches it to the
// workflow's session, starting one if needed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, workflowID string) error {
	// Start the session before hijacking the response, so a store failure
	// still yields a plain HTTP error.
	if _, err := h.getOrCreate(r.Context(), workflowID); err != nil {
		return fmt.Errorf("opening session for workflow %s: %w", workflowID, err)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading connection: %w", err)
	}

	client := newClient(conn)
	if _, err := h.attach(r.Context(), workflowID, client); err != nil {
		conn.Close()
		return fmt.Errorf("attaching to workflow %s: %w", workflowID, err)
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// attach registers a client with the workflow's session. The janitor can
// shut a session down between the lookup and the register hand-off, so the
// hand-off is retried against a fresh session rather than blocking on a run
// loop that has already exited.
func (h *Hub) attach(ctx context.Context, workflowID string, client *Client) (*Session, error) {
	for {
		session, err := h.getOrCreate(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if session.tryRegister(client) {
			return session, nil
		}
	}
}

// Participants reports the live participant list for a workflow, or nil when
// no session is running.
func (h *Hub) Participants(workflowID string) []model.Participant {
	if s, ok := h.Lookup(workflowID); ok {
		return s.Participants()
	}
	return nil
}

// Locks reports the live node locks for a workflow, or nil when no session
// is running.
func (h *Hub) Locks(workflowID string) []model.NodeLock {
	if s, ok := h.Lookup(workflowID); ok {
		return s.Locks()
	}
	return nil
}

// Lookup returns the live session for a workflow, if one is running.
func (h *Hub) Lookup(workflowID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.active[workflowID]
	return s, ok
}

func (h *Hub) getOrCreate(ctx context.Context, workflowID string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.active[workflowID]; ok {
		return s, nil
	}

	record, err := h.ensureRecord(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	s := newSession(h, workflowID, record.SessionID)
	h.active[workflowID] = s
	go s.run()
	return s, nil
}

// ensureRecord makes sure a persistent session record exists and is marked
// active before the first client attaches.
func (h *Hub) ensureRecord(ctx context.Context, workflowID string) (*model.Session, error) {
	record, err := h.sessions.GetByWorkflow(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		record = &model.Session{
			SessionID:  uuid.NewString(),
			WorkflowID: workflowID,
			IsActive:   true,
			CreatedAt:  h.clock.Now(),
		}
		if err := h.sessions.Create(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	}
	if err != nil {
		return nil, err
	}
	if !record.IsActive {
		if err := h.sessions.SetActive(ctx, workflowID, true); err != nil {
			return nil, err
		}
		record.IsActive = true
	}
	return record, nil
}

// Run reaps idle sessions until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.reap(ctx)
		}
	}
}

func (h *Hub) reap(ctx context.Context) {
	now := h.clock.Now()

	h.mu.Lock()
	var idle []*Session
	for workflowID, s := range h.active {
		if s.clientCount.Load() == 0 && s.idleSince(now) >= h.cfg.SessionIdleTimeout {
			idle = append(idle, s)
			delete(h.active, workflowID)
		}
	}
	h.mu.Unlock()

	for _, s := range idle {
		close(s.shutdown)
		if err := h.sessions.SetActive(ctx, s.workflowID, false); err != nil {
			slog.Error("failed to deactivate idle session", "workflow_id", s.workflowID, "error", err)
			continue
		}
		slog.Info("reaped idle session", "workflow_id", s.workflowID, "session_id", s.sessionID)
	}
}

// Shutdown stops every live session. Connected clients see a closed socket.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for workflowID, s := range h.active {
		close(s.shutdown)
		delete(h.active, workflowID)
	}
}
