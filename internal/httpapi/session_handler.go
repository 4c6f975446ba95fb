package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/models"
	"github.com/kimmyxpow/focus-sub001/internal/session"
)

// SessionHandler exposes session commands and queries over HTTP.
type SessionHandler struct {
	app *session.App
}

func NewSessionHandler(app *session.App) *SessionHandler {
	return &SessionHandler{app: app}
}

type createSessionRequest struct {
	Odonym           string     `json:"odonym"`
	MinDurationMin   int        `json:"minDurationMin"`
	MaxDurationMin   int        `json:"maxDurationMin"`
	Repetitions      int        `json:"repetitions"`
	BreakDurationMin int        `json:"breakDurationMin"`
	BreakInterval    int        `json:"breakInterval"`
	IsPrivate        bool       `json:"isPrivate"`
	ChatEnabled      bool       `json:"chatEnabled"`
	ScheduledStartAt *time.Time `json:"scheduledStartAt,omitempty"`
}

type joinSessionRequest struct {
	Odonym     string `json:"odonym"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

type chatToggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	sess, err := h.app.Create(c.Request.Context(), session.CreateSessionRequest{
		CreatorID:     UserID(c),
		CreatorOdonym: req.Odonym,
		Settings: models.SessionSettings{
			MinDurationMin:   req.MinDurationMin,
			MaxDurationMin:   req.MaxDurationMin,
			Repetitions:      req.Repetitions,
			BreakDurationMin: req.BreakDurationMin,
			BreakInterval:    req.BreakInterval,
			IsPrivate:        req.IsPrivate,
			ChatEnabled:      req.ChatEnabled,
		},
		ScheduledStartAt: req.ScheduledStartAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(sess))
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.app.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sess))
}

func (h *SessionHandler) GetActive(c *gin.Context) {
	sess, err := h.app.GetActiveForUser(c.Request.Context(), UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sess))
}

func (h *SessionHandler) Join(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	sess, err := h.app.Join(c.Request.Context(), session.JoinSessionRequest{
		SessionID:  id,
		UserID:     UserID(c),
		Odonym:     req.Odonym,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sess))
}

func (h *SessionHandler) Leave(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.app.Leave(c.Request.Context(), id, UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.transition(c, session.ActionStart)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	h.transition(c, session.ActionCancel)
}

func (h *SessionHandler) transition(c *gin.Context, action session.Action) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.app.Transition(c.Request.Context(), id, action, UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sess))
}

func (h *SessionHandler) React(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if err := h.app.React(c.Request.Context(), id, UserID(c), req.Reaction); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reacted": true})
}

func (h *SessionHandler) ToggleChat(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req chatToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if err := h.app.ToggleChat(c.Request.Context(), id, UserID(c), req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatEnabled": req.Enabled})
}

func (h *SessionHandler) view(sess *models.Session) SessionView {
	return SessionView{
		Session: sess,
		Timer:   h.app.Snapshot(sess),
	}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_session_id", "message": "invalid session id"},
		})
		return uuid.Nil, false
	}
	return id, true
}
