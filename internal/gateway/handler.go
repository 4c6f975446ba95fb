package gateway

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler serves the push-channel upgrade endpoints.
type WebSocketHandler struct {
	manager    *ConnectionManager
	authorizer *Authorizer
}

func NewWebSocketHandler(manager *ConnectionManager, authorizer *Authorizer) *WebSocketHandler {
	return &WebSocketHandler{
		manager:    manager,
		authorizer: authorizer,
	}
}

// HandleSessionChannel upgrades a connection onto a session's event channel.
func (h *WebSocketHandler) HandleSessionChannel(w http.ResponseWriter, r *http.Request) {
	h.handleJoin(w, r, events.ChannelSession)
}

// HandleChatChannel upgrades a connection onto a session's chat channel.
// Non-participants are refused before the upgrade.
func (h *WebSocketHandler) HandleChatChannel(w http.ResponseWriter, r *http.Request) {
	h.handleJoin(w, r, events.ChannelChat)
}

func (h *WebSocketHandler) handleJoin(w http.ResponseWriter, r *http.Request, channel events.Channel) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	userID, err := h.authorizer.AuthorizeJoin(r.Context(), token, sessionID, channel)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("channel", string(channel)).
			Msg("channel join refused")
		http.Error(w, apperrors.CodeOf(err), apperrors.HTTPStatus(err))
		return
	}

	if err := h.manager.UpgradeConnection(w, r, userID, sessionID, channel); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleStats reports subscriber counts.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	subscribers, channels := h.manager.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"total_subscribers":%d,"active_channels":%d}`, subscribers, channels)
}

// RegisterRoutes registers the gateway routes on a mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionChannel)
	mux.HandleFunc("/ws/chat", h.HandleChatChannel)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}

// bearerToken pulls the token from the Authorization header, falling back to
// the access_token query parameter for browser WebSocket clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return r.URL.Query().Get("access_token")
}
