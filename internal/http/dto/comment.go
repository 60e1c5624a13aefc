package dto

import (
	"time"

	"autoflow.app/collab/internal/model"
)

type CreateCommentRequest struct {
	Position   *model.Cursor `json:"position,omitempty"`
	WorkflowID string        `json:"workflow_id" binding:"required,max=255"`
	NodeID     string        `json:"node_id,omitempty" binding:"max=255"`
	AuthorID   string        `json:"author_id" binding:"required,max=255"`
	AuthorName string        `json:"author_name,omitempty" binding:"max=255"`
	Content    string        `json:"content" binding:"required,max=10000"`
}

type ReplyCommentRequest struct {
	AuthorID   string `json:"author_id" binding:"required,max=255"`
	AuthorName string `json:"author_name,omitempty" binding:"max=255"`
	Content    string `json:"content" binding:"required,max=10000"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

// CommentResponse mirrors the model's wire shape so embedded clients can
// decode it straight into their local comment state.
type CommentResponse struct {
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Position   *model.Cursor     `json:"position,omitempty"`
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	NodeID     string            `json:"node_id,omitempty"`
	AuthorID   string            `json:"author_id"`
	AuthorName string            `json:"author_name,omitempty"`
	Content    string            `json:"content"`
	Replies    []CommentResponse `json:"replies,omitempty"`
	Mentions   []string          `json:"mentions,omitempty"`
	Resolved   bool              `json:"resolved"`
}

func ToCommentResponse(c *model.Comment) *CommentResponse {
	out := &CommentResponse{
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Position:   c.Position,
		ID:         c.ID,
		WorkflowID: c.WorkflowID,
		NodeID:     c.NodeID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Content:    c.Content,
		Mentions:   c.Mentions,
		Resolved:   c.Resolved,
	}
	for i := range c.Replies {
		out.Replies = append(out.Replies, *ToCommentResponse(&c.Replies[i]))
	}
	return out
}

func ToCommentResponses(comments []model.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, *ToCommentResponse(&comments[i]))
	}
	return out
}
