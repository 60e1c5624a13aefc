package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/http/dto"
	"autoflow.app/collab/internal/service"
)

type SessionHandler struct {
	sessionService service.SessionService
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Snapshot returns the full join-time state for a workflow's session.
func (h *SessionHandler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	workflowID := c.Param("workflowId")

	snap, err := h.sessionService.Snapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session for this workflow"})
			return
		}
		slog.ErrorContext(ctx, "failed to build snapshot", "workflow_id", workflowID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	c.JSON(http.StatusOK, dto.ToSnapshotResponse(snap))
}
