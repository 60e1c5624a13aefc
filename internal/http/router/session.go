package router

import (
	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/http/handler"
)

// SessionRouter sets up session routes. The snapshot is what a client joins
// from; the comment listing exists for dashboards that only want threads.
func SessionRouter(rg *gin.RouterGroup, sh *handler.SessionHandler, ch *handler.CommentHandler) {
	rg.GET("/:workflowId", sh.Snapshot)
	rg.GET("/:workflowId/comments", ch.ListByWorkflow)
}
