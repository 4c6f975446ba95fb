package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
	"github.com/kimmyxpow/focus-sub001/internal/session"
	"github.com/rs/zerolog/log"
)

// DefaultMaxMessageLen bounds chat text size when no override is configured.
const DefaultMaxMessageLen = 500

const defaultHistoryLimit = 200

// App is the chat sub-channel: an append-only per-session message log
// broadcast through the same mechanism as session events.
//
// The server assigns the message id before the append and the identical id
// rides both the command's own response and the broadcast echo, so clients
// can merge optimistic entries regardless of which copy arrives first.
type App struct {
	repo       Repository
	sessions   session.Repository
	publisher  events.Publisher
	clock      clockwork.Clock
	maxTextLen int
}

func NewApp(repo Repository, sessions session.Repository, publisher events.Publisher, clock clockwork.Clock, maxTextLen int) *App {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxMessageLen
	}
	return &App{
		repo:       repo,
		sessions:   sessions,
		publisher:  publisher,
		clock:      clock,
		maxTextLen: maxTextLen,
	}
}

// Send validates, appends, and broadcasts one message, returning the
// authoritative copy with its server-assigned id.
func (a *App) Send(ctx context.Context, sessionID, userID uuid.UUID, text string) (*models.ChatMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, apperrors.Validation("empty_message", "message text is empty")
	}
	if len(trimmed) > a.maxTextLen {
		return nil, apperrors.Validation("message_too_long", "message text exceeds the maximum length")
	}

	sess, participant, err := a.requireParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Settings.ChatEnabled {
		return nil, apperrors.Permission("chat_disabled", "chat is disabled for this session")
	}

	msg := &models.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Odonym:    participant.Odonym,
		Text:      trimmed,
		SentAt:    a.clock.Now(),
	}
	if err := a.repo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	// Echo is best-effort; the caller already holds the authoritative copy.
	payload := events.ChatMessagePayload{
		ID:     msg.ID.String(),
		Odonym: msg.Odonym,
		Text:   msg.Text,
		SentAt: msg.SentAt,
	}
	if err := a.publisher.Publish(ctx, sessionID, events.EventTypeChatMessage, payload); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("message_id", msg.ID.String()).
			Msg("failed to broadcast chat message")
	}

	return msg, nil
}

// History returns the session's message log. Participants only.
func (a *App) History(ctx context.Context, sessionID, userID uuid.UUID) ([]models.ChatMessage, error) {
	if _, _, err := a.requireParticipant(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return a.repo.ListBySession(ctx, sessionID, defaultHistoryLimit)
}

// Typing broadcasts a fire-and-forget typing indicator. Nothing is
// persisted and loss is accepted.
func (a *App) Typing(ctx context.Context, sessionID, userID uuid.UUID, typing bool) error {
	_, participant, err := a.requireParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	payload := events.ChatTypingPayload{
		Odonym: participant.Odonym,
		Typing: typing,
	}
	if err := a.publisher.Publish(ctx, sessionID, events.EventTypeChatTyping, payload); err != nil {
		log.Debug().
			Err(err).
			Str("session_id", sessionID.String()).
			Msg("typing indicator dropped")
	}
	return nil
}

func (a *App) requireParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, *models.Participant, error) {
	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	p := sess.ParticipantByUser(userID)
	if p == nil || !p.IsActive {
		return nil, nil, apperrors.Permission("not_a_participant", "chat requires active participation")
	}
	return sess, p, nil
}
