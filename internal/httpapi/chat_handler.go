package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kimmyxpow/focus-sub001/internal/chat"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// ChatHandler exposes the chat sub-channel's command and query surface.
type ChatHandler struct {
	app *chat.App
}

func NewChatHandler(app *chat.App) *ChatHandler {
	return &ChatHandler{app: app}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

// Send appends a message. The response carries the server-assigned id that
// also rides the broadcast echo, which is what makes client-side
// deduplication order-independent.
func (h *ChatHandler) Send(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	msg, err := h.app.Send(c.Request.Context(), id, UserID(c), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) History(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	messages, err := h.app.History(c.Request.Context(), id, UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ChatHandler) Typing(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if err := h.app.Typing(c.Request.Context(), id, UserID(c), req.Typing); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}
