package store

import (
	"github.com/redis/go-redis/v9"
)

type Stores struct {
	client *redis.Client
}

func NewStores(client *redis.Client) *Stores {
	return &Stores{client: client}
}

func (s *Stores) Sessions() SessionStore {
	return newSessionStore(s.client)
}

func (s *Stores) Comments() CommentStore {
	return newCommentStore(s.client)
}
