package dto

import (
	"autoflow.app/collab/internal/model"
)

// SnapshotResponse is the join-time session state. Participants and locks
// come from the live hub; comments from the store.
type SnapshotResponse struct {
	Session      model.Session       `json:"session"`
	Participants []model.Participant `json:"participants"`
	Comments     []CommentResponse   `json:"comments"`
	Locks        []model.NodeLock    `json:"locks"`
}

func ToSnapshotResponse(s *model.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		Session:      s.Session,
		Participants: s.Participants,
		Comments:     ToCommentResponses(s.Comments),
		Locks:        s.Locks,
	}
}
