package service

import (
	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/internal/store"
)

type Services struct {
	stores *store.Stores
	live   LiveState
	clock  clockwork.Clock
}

func NewServices(stores *store.Stores, live LiveState, clock clockwork.Clock) *Services {
	return &Services{
		stores: stores,
		live:   live,
		clock:  clock,
	}
}

func (s *Services) Sessions() SessionService {
	return NewSessionService(s.stores.Sessions(), s.stores.Comments(), s.live)
}

func (s *Services) Comments() CommentService {
	return NewCommentService(s.stores.Comments(), s.clock)
}
