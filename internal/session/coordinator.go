// Package session owns the client side of a collaboration session: it opens
// the transport channel, fetches the initial snapshot, routes inbound
// protocol messages to the presence, lock, and comment state, and exposes
// the consumer-facing API to the embedding application.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/common/logger"
	"autoflow.app/collab/core/config"
	"autoflow.app/collab/internal/comment"
	"autoflow.app/collab/internal/lock"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/presence"
	"autoflow.app/collab/internal/protocol"
	"autoflow.app/collab/internal/transport"
)

var (
	// ErrNoIdentity means no user identity was supplied; joining fails fast.
	ErrNoIdentity = errors.New("no identity available")
	// ErrAlreadyJoined means the coordinator is already attached to a session.
	ErrAlreadyJoined = errors.New("already joined a session")
	// ErrNotJoined means an operation needs an active session.
	ErrNotJoined = errors.New("not joined to a session")
	// ErrParentNotFound mirrors the comment store sentinel for callers that
	// only import this package.
	ErrParentNotFound = comment.ErrParentNotFound
)

// Options configures a Coordinator.
type Options struct {
	// HubURL is the websocket base, e.g. "wss://collab.autoflow.app".
	HubURL string
	// Clock drives heartbeats, backoff, and expiry; nil means wall clock.
	Clock clockwork.Clock
	// Dialer overrides the websocket dialer, for tests.
	Dialer transport.Dialer
	// Collab carries the protocol tunables; zero values use defaults.
	Collab config.CollabConfig
}

// Coordinator is the single entry point for one user's collaboration state.
// It is an explicitly owned object handed to the UI layer by reference; there
// is no ambient singleton.
type Coordinator struct {
	opts     Options
	identity model.Identity
	api      API
	hooks    Hooks

	channel  *transport.Channel
	presence *presence.Tracker
	locks    *lock.Manager
	comments *comment.Store

	mu         sync.Mutex
	joined     bool
	joining    bool
	workflowID string
	session    *model.Session
}

func NewCoordinator(opts Options, identity model.Identity, api API, hooks Hooks) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	c := &Coordinator{
		opts:     opts,
		identity: identity,
		api:      api,
		hooks:    hooks,
		presence: presence.NewTracker(opts.Clock, opts.Collab.ActivityWindow),
		locks:    lock.NewManager(opts.Clock),
		comments: comment.NewStore(),
	}

	c.channel = transport.NewChannel(
		transport.Options{
			Clock:           opts.Clock,
			Dialer:          opts.Dialer,
			ReconnectBase:   opts.Collab.ReconnectBase,
			MaxReconnects:   opts.Collab.MaxReconnects,
			HeartbeatPeriod: opts.Collab.HeartbeatInterval,
		},
		transport.Callbacks{
			OnMessage: c.dispatch,
			OnOpen:    c.sendJoin,
			OnClose: func(err error) {
				slog.Debug("collaboration socket closed", "error", err)
			},
			OnError: func(err error) {
				slog.Warn("collaboration socket error", "error", err)
			},
			OnConnectionLost: func() {
				c.emit(Event{Kind: EventConnectionLost})
			},
			OnStateChange: func(s transport.State) {
				c.emit(Event{Kind: EventConnectionState, State: s})
			},
		},
	)

	return c
}

// JoinSession attaches to the session for workflowID. The socket open and the
// snapshot fetch run concurrently; the merged state is exposed only once both
// succeed. On any failure the coordinator stays unjoined — no partial state.
func (c *Coordinator) JoinSession(ctx context.Context, workflowID string) error {
	if !c.identity.Valid() {
		return ErrNoIdentity
	}

	c.mu.Lock()
	if c.joined || c.joining {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.joining = true
	c.workflowID = workflowID
	c.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WorkflowID: &workflowID,
		UserID:     &c.identity.UserID,
		Component:  "collab.session",
	})

	endpoint := fmt.Sprintf("%s/ws/%s", c.opts.HubURL, workflowID)

	var (
		wg      sync.WaitGroup
		snap    *model.Snapshot
		connErr error
		snapErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		connErr = c.channel.Connect(ctx, endpoint)
	}()
	go func() {
		defer wg.Done()
		snap, snapErr = c.api.FetchSnapshot(ctx, workflowID)
	}()
	wg.Wait()

	if err := errors.Join(connErr, snapErr); err != nil {
		c.channel.Disconnect()
		c.mu.Lock()
		c.joining = false
		c.workflowID = ""
		c.mu.Unlock()
		slog.WarnContext(ctx, "failed to join session", "error", err)
		return fmt.Errorf("joining session: %w", err)
	}

	c.mu.Lock()
	if !c.joining || c.workflowID != workflowID {
		// A leave intervened while the connect and fetch were in flight; the
		// channel is already deliberately closed, so the join is abandoned
		// rather than committed against a dead socket.
		c.mu.Unlock()
		c.channel.Disconnect()
		c.presence.Reset()
		c.locks.Reset()
		c.comments.Reset()
		slog.InfoContext(ctx, "join abandoned, session was left while joining")
		return ErrNotJoined
	}
	c.presence.Load(snap.Participants)
	c.comments.Load(snap.Comments)
	for _, l := range snap.Locks {
		c.locks.ApplyLocked(l)
	}
	c.session = &snap.Session
	c.joined = true
	c.joining = false
	c.mu.Unlock()

	slog.InfoContext(ctx, "joined session",
		"session_id", snap.Session.SessionID,
		"participants", len(snap.Participants))
	return nil
}

// LeaveSession detaches from the current session: it announces the leave if
// still connected, closes the channel deliberately (which also stops the
// heartbeat and any pending reconnect), and clears all local state.
// Idempotent — safe to call when not joined.
func (c *Coordinator) LeaveSession() {
	c.mu.Lock()
	if !c.joined && !c.joining {
		c.mu.Unlock()
		return
	}
	c.joined = false
	c.joining = false
	c.session = nil
	c.workflowID = ""
	c.mu.Unlock()

	if c.channel.State() == transport.StateConnected {
		c.send(protocol.Leave{Type: protocol.TypeLeave, UserID: c.identity.UserID})
	}
	c.channel.Disconnect()

	c.presence.Reset()
	c.locks.Reset()
	c.comments.Reset()

	slog.Info("left session", "user_id", c.identity.UserID)
}

// --- Outbound helpers -------------------------------------------------------
// Thin pass-throughs to the channel; sends while not connected are dropped
// by the channel with a warning, keeping the UI responsive.

func (c *Coordinator) SendCursorPosition(x, y float64) {
	c.send(protocol.CursorMove{
		Type: protocol.TypeCursorMove, UserID: c.identity.UserID, X: x, Y: y,
	})
}

func (c *Coordinator) SendNodeUpdate(nodeID string, data json.RawMessage) {
	c.send(protocol.NodeUpdate{
		Type: protocol.TypeNodeUpdate, UserID: c.identity.UserID, NodeID: nodeID, NodeData: data,
	})
}

func (c *Coordinator) SendEdgeUpdate(edgeID string, data json.RawMessage) {
	c.send(protocol.EdgeUpdate{
		Type: protocol.TypeEdgeUpdate, UserID: c.identity.UserID, EdgeID: edgeID, EdgeData: data,
	})
}

func (c *Coordinator) SendSelectionChange(nodes, edges []string) {
	c.send(protocol.SelectionChange{
		Type: protocol.TypeSelectionChange, UserID: c.identity.UserID,
		SelectedNodes: nodes, SelectedEdges: edges,
	})
}

// LockNode requests an exclusive editing lock. The request is not granted
// optimistically: the lock becomes visible only when the authoritative
// node_locked event arrives, so two clients can never both believe they won.
func (c *Coordinator) LockNode(nodeID string) {
	c.send(protocol.LockNode{
		Type: protocol.TypeLockNode, UserID: c.identity.UserID,
		UserName: c.identity.DisplayName, NodeID: nodeID,
	})
}

func (c *Coordinator) UnlockNode(nodeID string) {
	c.send(protocol.UnlockNode{
		Type: protocol.TypeUnlockNode, UserID: c.identity.UserID, NodeID: nodeID,
	})
}

// --- Comments ----------------------------------------------------------------
// Comment mutations round-trip through the persistence API; local state is
// updated only from the acknowledged response.

func (c *Coordinator) AddComment(ctx context.Context, content, nodeID string, position *model.Cursor) (*model.Comment, error) {
	wf, err := c.requireJoined()
	if err != nil {
		return nil, err
	}
	created, err := c.api.CreateComment(ctx, CommentRequest{
		WorkflowID: wf,
		NodeID:     nodeID,
		AuthorID:   c.identity.UserID,
		AuthorName: c.identity.DisplayName,
		Content:    content,
		Position:   position,
	})
	if err != nil {
		return nil, err
	}
	c.comments.Add(*created)
	return created, nil
}

func (c *Coordinator) UpdateComment(ctx context.Context, commentID, content string) (*model.Comment, error) {
	if _, err := c.requireJoined(); err != nil {
		return nil, err
	}
	updated, err := c.api.UpdateComment(ctx, commentID, content)
	if err != nil {
		return nil, err
	}
	c.comments.Update(*updated)
	return updated, nil
}

func (c *Coordinator) DeleteComment(ctx context.Context, commentID string) error {
	if _, err := c.requireJoined(); err != nil {
		return err
	}
	if err := c.api.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	c.comments.Delete(commentID)
	return nil
}

func (c *Coordinator) ResolveComment(ctx context.Context, commentID string) (*model.Comment, error) {
	if _, err := c.requireJoined(); err != nil {
		return nil, err
	}
	resolved, err := c.api.ResolveComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	c.comments.Resolve(commentID)
	return resolved, nil
}

// ReplyComment appends a reply to an existing thread. A missing parent fails
// the operation before any server round trip and mutates nothing.
func (c *Coordinator) ReplyComment(ctx context.Context, commentID, content string) (*model.Comment, error) {
	wf, err := c.requireJoined()
	if err != nil {
		return nil, err
	}
	if _, ok := c.comments.Get(commentID); !ok {
		return nil, ErrParentNotFound
	}
	reply, err := c.api.ReplyComment(ctx, commentID, CommentRequest{
		WorkflowID: wf,
		AuthorID:   c.identity.UserID,
		AuthorName: c.identity.DisplayName,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}
	if err := c.comments.Reply(commentID, *reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// --- Queries -----------------------------------------------------------------

func (c *Coordinator) Session() (model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return model.Session{}, false
	}
	return *c.session, true
}

func (c *Coordinator) Participants() []model.Participant { return c.presence.List() }

func (c *Coordinator) ActiveParticipants() []model.Participant { return c.presence.ListActive() }

func (c *Coordinator) Comments() []model.Comment { return c.comments.List() }

func (c *Coordinator) Locks() []model.NodeLock { return c.locks.List() }

func (c *Coordinator) IsNodeLocked(nodeID string) bool { return c.locks.IsLocked(nodeID) }

func (c *Coordinator) NodeLock(nodeID string) (model.NodeLock, bool) { return c.locks.Get(nodeID) }

func (c *Coordinator) ConnectionState() transport.State { return c.channel.State() }

// --- Inbound dispatch --------------------------------------------------------

// dispatch routes one inbound frame to exactly one applier. Messages are
// processed strictly in delivery order. Malformed frames and unknown types
// are logged and dropped — never fatal, so the protocol can grow without
// breaking older clients.
func (c *Coordinator) dispatch(data []byte) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		slog.Warn("discarding malformed message", "error", err)
		return
	}

	switch typ {
	case protocol.TypeUserJoined:
		var m protocol.UserJoined
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed user_joined", "error", err)
			return
		}
		p := c.presence.ApplyJoin(m.UserID, m.UserName, m.UserEmail, m.UserAvatar)
		if m.UserID != c.identity.UserID {
			c.emit(Event{Kind: EventParticipantJoined, Participant: &p, UserName: m.UserName})
		}

	case protocol.TypeUserLeft:
		var m protocol.UserLeft
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed user_left", "error", err)
			return
		}
		c.presence.ApplyLeave(m.UserID)
		c.locks.ReleaseHeldBy(m.UserID)
		if m.UserID != c.identity.UserID {
			c.emit(Event{Kind: EventParticipantLeft, UserName: m.UserName})
		}

	case protocol.TypeCursorMoved:
		var m protocol.CursorMoved
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed cursor_moved", "error", err)
			return
		}
		c.presence.ApplyCursorMove(m.UserID, m.X, m.Y)

	case protocol.TypeNodeLocked:
		var m protocol.NodeLocked
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed node_locked", "error", err)
			return
		}
		c.locks.ApplyLocked(model.NodeLock{
			NodeID:     m.NodeID,
			HolderID:   m.UserID,
			HolderName: m.UserName,
			LockedAt:   time.UnixMilli(m.LockedAt),
			ExpiresAt:  time.UnixMilli(m.ExpiresAt),
		})

	case protocol.TypeNodeUnlocked:
		var m protocol.NodeUnlocked
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed node_unlocked", "error", err)
			return
		}
		c.locks.ApplyUnlocked(m.NodeID)

	case protocol.TypeNodeUpdated:
		var m protocol.NodeUpdated
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed node_updated", "error", err)
			return
		}
		if c.hooks.OnGraphUpdate != nil {
			c.hooks.OnGraphUpdate(GraphUpdate{NodeID: m.NodeID, Data: m.NodeData})
		}

	case protocol.TypeEdgeUpdated:
		var m protocol.EdgeUpdated
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn("discarding malformed edge_updated", "error", err)
			return
		}
		if c.hooks.OnGraphUpdate != nil {
			c.hooks.OnGraphUpdate(GraphUpdate{EdgeID: m.EdgeID, Data: m.EdgeData})
		}

	default:
		// Forward compatible: the server may speak newer dialects.
		slog.Debug("ignoring unrecognized message type", "type", string(typ))
	}
}

func (c *Coordinator) sendJoin() {
	c.mu.Lock()
	wf := c.workflowID
	c.mu.Unlock()
	if wf == "" {
		return
	}
	c.send(protocol.Join{
		Type:       protocol.TypeJoin,
		UserID:     c.identity.UserID,
		UserName:   c.identity.DisplayName,
		UserEmail:  c.identity.Email,
		WorkflowID: wf,
	})
}

func (c *Coordinator) send(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Warn("failed to encode outbound message", "error", err)
		return
	}
	c.channel.Send(data)
}

func (c *Coordinator) requireJoined() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return "", ErrNotJoined
	}
	return c.workflowID, nil
}

func (c *Coordinator) emit(ev Event) {
	if c.hooks.OnEvent != nil {
		c.hooks.OnEvent(ev)
	}
}
