package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/http/dto"
	"autoflow.app/collab/internal/service"
)

// actorHeader names the authenticated user making the request. Auth itself
// happens upstream of this service.
const actorHeader = "X-User-ID"

type CommentHandler struct {
	commentService service.CommentService
}

func NewCommentHandler(commentService service.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

func (h *CommentHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.commentService.Create(ctx, service.CreateCommentInput{
		Position:   req.Position,
		WorkflowID: req.WorkflowID,
		NodeID:     req.NodeID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Content:    req.Content,
	})
	if err != nil {
		h.renderError(c, err, "failed to create comment")
		return
	}

	c.JSON(http.StatusCreated, dto.ToCommentResponse(comment))
}

func (h *CommentHandler) Reply(c *gin.Context) {
	ctx := c.Request.Context()
	parentID := c.Param("commentId")

	var req dto.ReplyCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.commentService.Reply(ctx, parentID, service.CreateCommentInput{
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Content:    req.Content,
	})
	if err != nil {
		h.renderError(c, err, "failed to add reply")
		return
	}

	c.JSON(http.StatusCreated, dto.ToCommentResponse(reply))
}

func (h *CommentHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	commentID := c.Param("commentId")
	actorID := c.GetHeader(actorHeader)

	var req dto.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.commentService.Update(ctx, commentID, actorID, req.Content)
	if err != nil {
		h.renderError(c, err, "failed to update comment")
		return
	}

	c.JSON(http.StatusOK, dto.ToCommentResponse(comment))
}

func (h *CommentHandler) Resolve(c *gin.Context) {
	ctx := c.Request.Context()
	commentID := c.Param("commentId")

	comment, err := h.commentService.Resolve(ctx, commentID)
	if err != nil {
		h.renderError(c, err, "failed to resolve comment")
		return
	}

	c.JSON(http.StatusOK, dto.ToCommentResponse(comment))
}

func (h *CommentHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	commentID := c.Param("commentId")
	actorID := c.GetHeader(actorHeader)

	if err := h.commentService.Delete(ctx, commentID, actorID); err != nil {
		h.renderError(c, err, "failed to delete comment")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CommentHandler) ListByWorkflow(c *gin.Context) {
	ctx := c.Request.Context()
	workflowID := c.Param("workflowId")

	comments, err := h.commentService.ListByWorkflow(ctx, workflowID)
	if err != nil {
		h.renderError(c, err, "failed to list comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": dto.ToCommentResponses(comments)})
}

func (h *CommentHandler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
	case errors.Is(err, service.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment content is empty"})
	case errors.Is(err, service.ErrNotAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the comment author can do that"})
	default:
		slog.ErrorContext(c.Request.Context(), fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
