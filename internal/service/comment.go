package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/common/id"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/store"
)

var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrEmptyContent    = errors.New("comment content is empty")
	ErrNotAuthor       = errors.New("only the comment author can do that")
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

// CreateCommentInput carries everything needed to open a new thread or add
// a reply. NodeID and Position only apply to top-level comments.
type CreateCommentInput struct {
	Position   *model.Cursor
	WorkflowID string
	NodeID     string
	AuthorID   string
	AuthorName string
	Content    string
}

type CommentService interface {
	Create(ctx context.Context, in CreateCommentInput) (*model.Comment, error)
	Reply(ctx context.Context, parentID string, in CreateCommentInput) (*model.Comment, error)
	Update(ctx context.Context, commentID, actorID, content string) (*model.Comment, error)
	Resolve(ctx context.Context, commentID string) (*model.Comment, error)
	Delete(ctx context.Context, commentID, actorID string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]model.Comment, error)
}

type commentService struct {
	comments store.CommentStore
	clock    clockwork.Clock
}

func NewCommentService(comments store.CommentStore, clock clockwork.Clock) CommentService {
	return &commentService{
		comments: comments,
		clock:    clock,
	}
}

func (s *commentService) Create(ctx context.Context, in CreateCommentInput) (*model.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	now := s.clock.Now()
	c := &model.Comment{
		ID:         id.NewString(),
		WorkflowID: in.WorkflowID,
		NodeID:     in.NodeID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Content:    content,
		Position:   in.Position,
		Mentions:   extractMentions(content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.comments.Append(ctx, c); err != nil {
		return nil, fmt.Errorf("appending comment: %w", err)
	}
	return c, nil
}

// Reply adds to an existing thread. Replying to a reply attaches to the same
// thread; nesting stays two levels deep.
func (s *commentService) Reply(ctx context.Context, parentID string, in CreateCommentInput) (*model.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	thread, err := s.findThread(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reply := model.Comment{
		ID:         id.NewString(),
		WorkflowID: thread.WorkflowID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Content:    content,
		Mentions:   extractMentions(content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	thread.Replies = append(thread.Replies, reply)

	if err := s.comments.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("saving thread: %w", err)
	}
	if err := s.comments.IndexReply(ctx, reply.ID, thread.ID); err != nil {
		return nil, fmt.Errorf("indexing reply: %w", err)
	}
	return &reply, nil
}

func (s *commentService) Update(ctx context.Context, commentID, actorID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	thread, err := s.findThread(ctx, commentID)
	if err != nil {
		return nil, err
	}
	target := locate(thread, commentID)
	if target == nil {
		return nil, ErrCommentNotFound
	}
	if target.AuthorID != actorID {
		return nil, ErrNotAuthor
	}

	target.Content = content
	target.Mentions = extractMentions(content)
	target.UpdatedAt = s.clock.Now()

	if err := s.comments.SaveThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("saving thread: %w", err)
	}
	out := *target
	return &out, nil
}

// Resolve marks a whole thread resolved. Resolving an already-resolved
// thread is a no-op; any participant may resolve.
func (s *commentService) Resolve(ctx context.Context, commentID string) (*model.Comment, error) {
	thread, err := s.findThread(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !thread.Resolved {
		thread.Resolved = true
		thread.UpdatedAt = s.clock.Now()
		if err := s.comments.SaveThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("saving thread: %w", err)
		}
	}
	return thread, nil
}

func (s *commentService) Delete(ctx context.Context, commentID, actorID string) error {
	thread, err := s.findThread(ctx, commentID)
	if err != nil {
		return err
	}
	target := locate(thread, commentID)
	if target == nil {
		return ErrCommentNotFound
	}
	if target.AuthorID != actorID {
		return ErrNotAuthor
	}

	if thread.ID == commentID {
		// Deleting the top-level comment takes its replies with it.
		if err := s.comments.DeleteThread(ctx, thread); err != nil {
			return fmt.Errorf("deleting thread: %w", err)
		}
		return nil
	}

	replies := thread.Replies[:0]
	for _, r := range thread.Replies {
		if r.ID != commentID {
			replies = append(replies, r)
		}
	}
	thread.Replies = replies
	if err := s.comments.SaveThread(ctx, thread); err != nil {
		return fmt.Errorf("saving thread: %w", err)
	}
	return nil
}

func (s *commentService) ListByWorkflow(ctx context.Context, workflowID string) ([]model.Comment, error) {
	comments, err := s.comments.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

func (s *commentService) findThread(ctx context.Context, commentID string) (*model.Comment, error) {
	thread, err := s.comments.FindThread(ctx, commentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, fmt.Errorf("finding thread: %w", err)
	}
	return thread, nil
}

// locate finds the comment with the given ID inside a thread, at either level.
func locate(thread *model.Comment, commentID string) *model.Comment {
	if thread.ID == commentID {
		return thread
	}
	for i := range thread.Replies {
		if thread.Replies[i].ID == commentID {
			return &thread.Replies[i]
		}
	}
	return nil
}

func extractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		mentions = append(mentions, m[1])
	}
	return mentions
}
