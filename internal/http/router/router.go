package router

import (
	"github.com/gin-gonic/gin"

	"autoflow.app/collab/internal/http/handler"
	"autoflow.app/collab/internal/hub"
	"autoflow.app/collab/internal/service"
)

func SetupRoutes(router *gin.Engine, services *service.Services, h *hub.Hub) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	wsHandler := handler.NewWSHandler(h)
	router.GET("/ws/:workflowId", wsHandler.Connect)

	v1 := router.Group("/api/v1")
	{
		sessionHandler := handler.NewSessionHandler(services.Sessions())
		commentHandler := handler.NewCommentHandler(services.Comments())
		SessionRouter(v1.Group("/sessions"), sessionHandler, commentHandler)
		CommentRouter(v1.Group("/comments"), commentHandler)
	}
}
