package hub

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/common/logger"
	"autoflow.app/collab/internal/lock"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/presence"
	"autoflow.app/collab/internal/protocol"
)

type inboundFrame struct {
	client *Client
	data   []byte
}

// Session is the authoritative collaboration state for one workflow. All
// mutation happens inside the run loop, so frames from concurrent clients are
// applied in a single total order.
type Session struct {
	hub        *Hub
	workflowID string
	sessionID  string
	clock      clockwork.Clock
	lockTTL    time.Duration

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	shutdown   chan struct{}

	clients  map[*Client]struct{}
	presence *presence.Tracker
	locks    *lock.Manager

	// Read by the hub janitor from outside the run loop.
	lastSeen    atomic.Int64
	clientCount atomic.Int32
}

func newSession(hub *Hub, workflowID, sessionID string) *Session {
	s := &Session{
		hub:        hub,
		workflowID: workflowID,
		sessionID:  sessionID,
		clock:      hub.clock,
		lockTTL:    hub.cfg.LockTTL,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
		shutdown:   make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		presence:   presence.NewTracker(hub.clock, hub.cfg.ActivityWindow),
		locks:      lock.NewManager(hub.clock),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastSeen.Store(s.clock.Now().UnixNano()) }

// tryRegister hands a client to the run loop. It reports false when the
// session has been shut down, instead of blocking on a loop that will never
// receive again.
func (s *Session) tryRegister(client *Client) bool {
	client.session = s
	select {
	case s.register <- client:
		return true
	case <-s.shutdown:
		return false
	}
}

// idleSince reports how long the session has gone without traffic.
func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Participants reports the session's current participant list. Safe to call
// from outside the run loop.
func (s *Session) Participants() []model.Participant { return s.presence.List() }

// Locks reports the live node locks. Safe to call from outside the run loop.
func (s *Session) Locks() []model.NodeLock { return s.locks.List() }

func (s *Session) run() {
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component:  "hub",
		WorkflowID: &s.workflowID,
		SessionID:  &s.sessionID,
	})
	log := slog.With("workflow_id", s.workflowID, "session_id", s.sessionID)
	log.Info("collaboration session started")

	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.clientCount.Store(int32(len(s.clients)))
			s.touch()

		case client := <-s.unregister:
			if _, ok := s.clients[client]; !ok {
				continue
			}
			delete(s.clients, client)
			s.clientCount.Store(int32(len(s.clients)))
			close(client.send)
			s.dropParticipant(ctx, client)
			s.touch()

		case frame := <-s.inbound:
			s.handleFrame(ctx, frame.client, frame.data)
			s.touch()

		case <-s.shutdown:
			for client := range s.clients {
				close(client.send)
				delete(s.clients, client)
			}
			log.Info("collaboration session stopped")
			return
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, client *Client, data []byte) {
	msgType, err := protocol.PeekType(data)
	if err != nil {
		slog.WarnContext(ctx, "discarding malformed frame", "error", err)
		return
	}

	switch msgType {
	case protocol.TypeJoin:
		var msg protocol.Join
		if err := protocol.Decode(data, &msg); err != nil {
			slog.WarnContext(ctx, "discarding malformed join", "error", err)
			return
		}
		s.handleJoin(ctx, client, msg)

	case protocol.TypeLeave:
		var msg protocol.Leave
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.dropParticipant(ctx, client)

	case protocol.TypeCursorMove:
		var msg protocol.CursorMove
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.presence.ApplyCursorMove(client.userID, msg.X, msg.Y)
		s.broadcastExcept(ctx, client, protocol.CursorMoved{
			Type:   protocol.TypeCursorMoved,
			UserID: client.userID,
			X:      msg.X,
			Y:      msg.Y,
		})

	case protocol.TypeNodeUpdate:
		var msg protocol.NodeUpdate
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.presence.Touch(client.userID)
		s.broadcastExcept(ctx, client, protocol.NodeUpdated{
			Type:     protocol.TypeNodeUpdated,
			NodeID:   msg.NodeID,
			NodeData: msg.NodeData,
		})

	case protocol.TypeEdgeUpdate:
		var msg protocol.EdgeUpdate
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.presence.Touch(client.userID)
		s.broadcastExcept(ctx, client, protocol.EdgeUpdated{
			Type:     protocol.TypeEdgeUpdated,
			EdgeID:   msg.EdgeID,
			EdgeData: msg.EdgeData,
		})

	case protocol.TypeSelectionChange, protocol.TypeHeartbeat:
		s.presence.Touch(client.userID)

	case protocol.TypeLockNode:
		var msg protocol.LockNode
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.handleLockRequest(ctx, client, msg.NodeID)

	case protocol.TypeUnlockNode:
		var msg protocol.UnlockNode
		if err := protocol.Decode(data, &msg); err != nil {
			return
		}
		s.handleUnlockRequest(ctx, client, msg.NodeID)

	default:
		slog.DebugContext(ctx, "ignoring unhandled frame", "type", string(msgType))
	}
}

func (s *Session) handleJoin(ctx context.Context, client *Client, msg protocol.Join) {
	client.userID = msg.UserID
	client.userName = msg.UserName

	participant := s.presence.ApplyJoin(msg.UserID, msg.UserName, msg.UserEmail, "")

	s.broadcastExcept(ctx, client, protocol.UserJoined{
		Type:       protocol.TypeUserJoined,
		UserID:     participant.UserID,
		UserName:   participant.DisplayName,
		UserEmail:  participant.Email,
		UserAvatar: participant.Avatar,
	})
	slog.InfoContext(ctx, "participant joined", "user_id", msg.UserID)
}

func (s *Session) handleLockRequest(ctx context.Context, client *Client, nodeID string) {
	if held, ok := s.locks.Get(nodeID); ok && held.HolderID != client.userID {
		// Lock is taken; the requester simply never sees a grant.
		slog.DebugContext(ctx, "lock denied", "node_id", nodeID, "holder_id", held.HolderID)
		return
	}

	now := s.clock.Now()
	granted := model.NodeLock{
		NodeID:     nodeID,
		HolderID:   client.userID,
		HolderName: client.userName,
		LockedAt:   now,
		ExpiresAt:  now.Add(s.lockTTL),
	}
	s.locks.ApplyLocked(granted)
	s.broadcastAll(ctx, protocol.NodeLocked{
		Type:      protocol.TypeNodeLocked,
		NodeID:    granted.NodeID,
		UserID:    granted.HolderID,
		UserName:  granted.HolderName,
		LockedAt:  granted.LockedAt.UnixMilli(),
		ExpiresAt: granted.ExpiresAt.UnixMilli(),
	})
}

func (s *Session) handleUnlockRequest(ctx context.Context, client *Client, nodeID string) {
	if !s.locks.IsLockedBy(nodeID, client.userID) {
		return
	}
	s.locks.ApplyUnlocked(nodeID)
	s.broadcastAll(ctx, protocol.NodeUnlocked{
		Type:   protocol.TypeNodeUnlocked,
		NodeID: nodeID,
	})
}

// dropParticipant releases everything a departing user held and tells the
// rest of the session.
func (s *Session) dropParticipant(ctx context.Context, client *Client) {
	if client.userID == "" {
		return
	}
	for _, nodeID := range s.locks.ReleaseHeldBy(client.userID) {
		s.broadcastAll(ctx, protocol.NodeUnlocked{
			Type:   protocol.TypeNodeUnlocked,
			NodeID: nodeID,
		})
	}
	s.presence.ApplyLeave(client.userID)
	s.broadcastAll(ctx, protocol.UserLeft{
		Type:     protocol.TypeUserLeft,
		UserID:   client.userID,
		UserName: client.userName,
	})
	slog.InfoContext(ctx, "participant left", "user_id", client.userID)
	client.userID = ""
}

func (s *Session) broadcastAll(ctx context.Context, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode broadcast", "error", err)
		return
	}
	for client := range s.clients {
		client.enqueue(data)
	}
}

func (s *Session) broadcastExcept(ctx context.Context, sender *Client, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode broadcast", "error", err)
		return
	}
	for client := range s.clients {
		if client == sender {
			continue
		}
		client.enqueue(data)
	}
}
