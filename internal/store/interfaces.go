package store

import (
	"context"
	"errors"

	"autoflow.app/collab/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SessionStore defines the contract for collaboration session records
type SessionStore interface {
	GetByWorkflow(ctx context.Context, workflowID string) (*model.Session, error)
	Create(ctx context.Context, session *model.Session) error
	SetActive(ctx context.Context, workflowID string, active bool) error
	Delete(ctx context.Context, workflowID string) error
}

// CommentStore defines the contract for comment thread data access.
// Threads are stored whole: a reply lives inside its parent's record, and
// both the thread ID and every reply ID resolve back to the thread.
type CommentStore interface {
	Append(ctx context.Context, c *model.Comment) error
	FindThread(ctx context.Context, commentID string) (*model.Comment, error)
	SaveThread(ctx context.Context, thread *model.Comment) error
	IndexReply(ctx context.Context, replyID, threadID string) error
	DeleteThread(ctx context.Context, thread *model.Comment) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]model.Comment, error)
}
