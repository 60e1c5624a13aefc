package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autoflow.app/collab/internal/model"
)

// API is the persistence collaborator the coordinator round-trips through:
// the initial snapshot at join time and the comment CRUD surface. Comments
// become authoritative only once the server acknowledges them.
type API interface {
	FetchSnapshot(ctx context.Context, workflowID string) (*model.Snapshot, error)
	CreateComment(ctx context.Context, req CommentRequest) (*model.Comment, error)
	UpdateComment(ctx context.Context, commentID, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ResolveComment(ctx context.Context, commentID string) (*model.Comment, error)
	ReplyComment(ctx context.Context, commentID string, req CommentRequest) (*model.Comment, error)
}

// CommentRequest is the payload for creating a comment or reply.
type CommentRequest struct {
	Position   *model.Cursor `json:"position,omitempty"`
	WorkflowID string        `json:"workflow_id"`
	NodeID     string        `json:"node_id,omitempty"`
	AuthorID   string        `json:"author_id"`
	AuthorName string        `json:"author_name,omitempty"`
	Content    string        `json:"content"`
	Mentions   []string      `json:"mentions,omitempty"`
}

// APIClient talks to the collaboration server's REST surface.
type APIClient struct {
	http    *http.Client
	baseURL string
	userID  string
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithUser returns a client that stamps requests with the acting user. The
// server relies on it for authorship checks on edits and deletes.
func (c *APIClient) WithUser(userID string) *APIClient {
	clone := *c
	clone.userID = userID
	return &clone
}

func (c *APIClient) FetchSnapshot(ctx context.Context, workflowID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/sessions/"+workflowID, nil, &snap); err != nil {
		return nil, fmt.Errorf("fetching session snapshot: %w", err)
	}
	return &snap, nil
}

func (c *APIClient) CreateComment(ctx context.Context, req CommentRequest) (*model.Comment, error) {
	var out model.Comment
	if err := c.do(ctx, http.MethodPost, "/comments", req, &out); err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	return &out, nil
}

func (c *APIClient) UpdateComment(ctx context.Context, commentID, content string) (*model.Comment, error) {
	var out model.Comment
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, "/comments/"+commentID, body, &out); err != nil {
		return nil, fmt.Errorf("updating comment: %w", err)
	}
	return &out, nil
}

func (c *APIClient) DeleteComment(ctx context.Context, commentID string) error {
	if err := c.do(ctx, http.MethodDelete, "/comments/"+commentID, nil, nil); err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return nil
}

func (c *APIClient) ResolveComment(ctx context.Context, commentID string) (*model.Comment, error) {
	var out model.Comment
	if err := c.do(ctx, http.MethodPost, "/comments/"+commentID+"/resolve", nil, &out); err != nil {
		return nil, fmt.Errorf("resolving comment: %w", err)
	}
	return &out, nil
}

func (c *APIClient) ReplyComment(ctx context.Context, commentID string, req CommentRequest) (*model.Comment, error) {
	var out model.Comment
	if err := c.do(ctx, http.MethodPost, "/comments/"+commentID+"/replies", req, &out); err != nil {
		return nil, fmt.Errorf("replying to comment: %w", err)
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
