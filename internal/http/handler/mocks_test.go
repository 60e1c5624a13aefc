package handler_test

import (
	"context"

	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/service"
)

type mockCommentService struct {
	createFn         func(ctx context.Context, in service.CreateCommentInput) (*model.Comment, error)
	replyFn          func(ctx context.Context, parentID string, in service.CreateCommentInput) (*model.Comment, error)
	updateFn         func(ctx context.Context, commentID, actorID, content string) (*model.Comment, error)
	resolveFn        func(ctx context.Context, commentID string) (*model.Comment, error)
	deleteFn         func(ctx context.Context, commentID, actorID string) error
	listByWorkflowFn func(ctx context.Context, workflowID string) ([]model.Comment, error)
}

func (m *mockCommentService) Create(ctx context.Context, in service.CreateCommentInput) (*model.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Comment{ID: "c-1"}, nil
}

func (m *mockCommentService) Reply(ctx context.Context, parentID string, in service.CreateCommentInput) (*model.Comment, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, parentID, in)
	}
	return &model.Comment{ID: "r-1"}, nil
}

func (m *mockCommentService) Update(ctx context.Context, commentID, actorID, content string) (*model.Comment, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, commentID, actorID, content)
	}
	return &model.Comment{ID: commentID, Content: content}, nil
}

func (m *mockCommentService) Resolve(ctx context.Context, commentID string) (*model.Comment, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, commentID)
	}
	return &model.Comment{ID: commentID, Resolved: true}, nil
}

func (m *mockCommentService) Delete(ctx context.Context, commentID, actorID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, commentID, actorID)
	}
	return nil
}

func (m *mockCommentService) ListByWorkflow(ctx context.Context, workflowID string) ([]model.Comment, error) {
	if m.listByWorkflowFn != nil {
		return m.listByWorkflowFn(ctx, workflowID)
	}
	return []model.Comment{}, nil
}

type mockSessionService struct {
	snapshotFn func(ctx context.Context, workflowID string) (*model.Snapshot, error)
}

func (m *mockSessionService) Snapshot(ctx context.Context, workflowID string) (*model.Snapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, workflowID)
	}
	return &model.Snapshot{
		Session: model.Session{SessionID: "s-1", WorkflowID: workflowID, IsActive: true},
	}, nil
}
