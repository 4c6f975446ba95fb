package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kimmyxpow/focus-sub001/internal/auth"
)

// NewRouter wires the command/query API.
func NewRouter(verifier *auth.Verifier, sessions *SessionHandler, chats *ChatHandler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.Use(Auth(verifier))

	api.POST("/sessions", sessions.Create)
	api.GET("/sessions/active", sessions.GetActive)
	api.GET("/sessions/:id", sessions.Get)
	api.POST("/sessions/:id/join", sessions.Join)
	api.POST("/sessions/:id/leave", sessions.Leave)
	api.POST("/sessions/:id/start", sessions.Start)
	api.POST("/sessions/:id/cancel", sessions.Cancel)
	api.POST("/sessions/:id/reaction", sessions.React)
	api.POST("/sessions/:id/chat-toggle", sessions.ToggleChat)

	api.GET("/sessions/:id/messages", chats.History)
	api.POST("/sessions/:id/messages", chats.Send)
	api.POST("/sessions/:id/typing", chats.Typing)

	return engine
}
