package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"autoflow.app/collab/internal/model"
)

func sessionKey(workflowID string) string {
	return "collab:session:" + workflowID
}

type sessionStore struct {
	client *redis.Client
}

func newSessionStore(client *redis.Client) SessionStore {
	return &sessionStore{client: client}
}

func (s *sessionStore) GetByWorkflow(ctx context.Context, workflowID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

func (s *sessionStore) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.WorkflowID), data, 0).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (s *sessionStore) SetActive(ctx context.Context, workflowID string, active bool) error {
	session, err := s.GetByWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	session.IsActive = active
	return s.Create(ctx, session)
}

func (s *sessionStore) Delete(ctx context.Context, workflowID string) error {
	if err := s.client.Del(ctx, sessionKey(workflowID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
