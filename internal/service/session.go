package service

import (
	"context"
	"errors"
	"fmt"

	"autoflow.app/collab/common/logger"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")

// LiveState is the in-memory session state owned by the hub. Participants
// and locks are never persisted; a snapshot merges them with the durable
// session record and comment threads.
type LiveState interface {
	Participants(workflowID string) []model.Participant
	Locks(workflowID string) []model.NodeLock
}

type SessionService interface {
	Snapshot(ctx context.Context, workflowID string) (*model.Snapshot, error)
}

type sessionService struct {
	sessions store.SessionStore
	comments store.CommentStore
	live     LiveState
}

func NewSessionService(sessions store.SessionStore, comments store.CommentStore, live LiveState) SessionService {
	return &sessionService{
		sessions: sessions,
		comments: comments,
		live:     live,
	}
}

// Snapshot assembles the full join-time state for a workflow: the session
// record, live participants and locks, and every comment thread.
func (s *sessionService) Snapshot(ctx context.Context, workflowID string) (*model.Snapshot, error) {
	sc := logger.StartSpan(ctx, "session.snapshot")
	defer sc.End()
	ctx = sc.Context()

	session, err := s.sessions.GetByWorkflow(ctx, workflowID)
	if err != nil {
		sc.RecordError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	comments, err := s.comments.ListByWorkflow(ctx, workflowID)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("loading comments: %w", err)
	}

	participants := s.live.Participants(workflowID)
	if participants == nil {
		participants = []model.Participant{}
	}
	locks := s.live.Locks(workflowID)
	if locks == nil {
		locks = []model.NodeLock{}
	}

	return &model.Snapshot{
		Session:      *session,
		Participants: participants,
		Comments:     comments,
		Locks:        locks,
	}, nil
}
