package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"autoflow.app/collab/internal/model"
)

func commentOrderKey(workflowID string) string {
	return "collab:comments:" + workflowID + ":order"
}

func commentThreadsKey(workflowID string) string {
	return "collab:comments:" + workflowID + ":threads"
}

func commentIndexKey(commentID string) string {
	return "collab:comment_idx:" + commentID
}

// threadRef locates the thread a comment ID belongs to. For a top-level
// comment ThreadID equals the comment's own ID.
type threadRef struct {
	WorkflowID string `json:"workflowId"`
	ThreadID   string `json:"threadId"`
}

type commentStore struct {
	client *redis.Client
}

func newCommentStore(client *redis.Client) CommentStore {
	return &commentStore{client: client}
}

func (s *commentStore) Append(ctx context.Context, c *model.Comment) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}
	ref, err := json.Marshal(threadRef{WorkflowID: c.WorkflowID, ThreadID: c.ID})
	if err != nil {
		return fmt.Errorf("encoding thread ref: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, commentOrderKey(c.WorkflowID), c.ID)
	pipe.HSet(ctx, commentThreadsKey(c.WorkflowID), c.ID, data)
	pipe.Set(ctx, commentIndexKey(c.ID), ref, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing comment: %w", err)
	}
	return nil
}

func (s *commentStore) resolveRef(ctx context.Context, commentID string) (*threadRef, error) {
	data, err := s.client.Get(ctx, commentIndexKey(commentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching comment index: %w", err)
	}
	var ref threadRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("decoding thread ref: %w", err)
	}
	return &ref, nil
}

func (s *commentStore) FindThread(ctx context.Context, commentID string) (*model.Comment, error) {
	ref, err := s.resolveRef(ctx, commentID)
	if err != nil {
		return nil, err
	}
	data, err := s.client.HGet(ctx, commentThreadsKey(ref.WorkflowID), ref.ThreadID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	var thread model.Comment
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("decoding thread: %w", err)
	}
	return &thread, nil
}

func (s *commentStore) SaveThread(ctx context.Context, thread *model.Comment) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("encoding thread: %w", err)
	}
	if err := s.client.HSet(ctx, commentThreadsKey(thread.WorkflowID), thread.ID, data).Err(); err != nil {
		return fmt.Errorf("storing thread: %w", err)
	}
	return nil
}

func (s *commentStore) IndexReply(ctx context.Context, replyID, threadID string) error {
	parent, err := s.resolveRef(ctx, threadID)
	if err != nil {
		return err
	}
	ref, err := json.Marshal(threadRef{WorkflowID: parent.WorkflowID, ThreadID: parent.ThreadID})
	if err != nil {
		return fmt.Errorf("encoding thread ref: %w", err)
	}
	if err := s.client.Set(ctx, commentIndexKey(replyID), ref, 0).Err(); err != nil {
		return fmt.Errorf("storing comment index: %w", err)
	}
	return nil
}

func (s *commentStore) DeleteThread(ctx context.Context, thread *model.Comment) error {
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, commentOrderKey(thread.WorkflowID), 1, thread.ID)
	pipe.HDel(ctx, commentThreadsKey(thread.WorkflowID), thread.ID)
	pipe.Del(ctx, commentIndexKey(thread.ID))
	for _, reply := range thread.Replies {
		pipe.Del(ctx, commentIndexKey(reply.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	return nil
}

func (s *commentStore) ListByWorkflow(ctx context.Context, workflowID string) ([]model.Comment, error) {
	ids, err := s.client.LRange(ctx, commentOrderKey(workflowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching comment order: %w", err)
	}
	if len(ids) == 0 {
		return []model.Comment{}, nil
	}

	rows, err := s.client.HMGet(ctx, commentThreadsKey(workflowID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching threads: %w", err)
	}

	comments := make([]model.Comment, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.(string)
		if !ok {
			continue
		}
		var thread model.Comment
		if err := json.Unmarshal([]byte(raw), &thread); err != nil {
			return nil, fmt.Errorf("decoding thread: %w", err)
		}
		comments = append(comments, thread)
	}
	return comments, nil
}
