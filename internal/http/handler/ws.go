package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/hub"
)

type WSHandler struct {
	hub *hub.Hub
}

func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Connect upgrades the request and attaches the socket to the workflow's
// session. After the upgrade the connection belongs to the hub; errors past
// that point surface as socket closes, not HTTP statuses.
func (h *WSHandler) Connect(c *gin.Context) {
	workflowID := c.Param("workflowId")
	if workflowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow id is required"})
		return
	}

	if err := h.hub.Serve(c.Writer, c.Request, workflowID); err != nil {
		slog.ErrorContext(c.Request.Context(), "websocket attach failed", "workflow_id", workflowID, "error", err)
		// Upgrade failures write their own response; session failures do not.
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open session"})
		}
	}
}
