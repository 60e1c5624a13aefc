package router

import (
	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/http/handler"
)

func CommentRouter(rg *gin.RouterGroup, h *handler.CommentHandler) {
	rg.POST("", h.Create)
	rg.PUT("/:commentId", h.Update)
	rg.DELETE("/:commentId", h.Delete)
	rg.POST("/:commentId/resolve", h.Resolve)
	rg.POST("/:commentId/replies", h.Reply)
}
