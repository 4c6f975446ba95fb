package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

// App owns the canonical session state machine: it validates commands,
// applies them through conditional writes, and emits exactly one event per
// committed mutation.
type App struct {
	repo      Repository
	publisher events.Publisher
	clock     clockwork.Clock
}

func NewApp(repo Repository, publisher events.Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
	}
}

// Create registers a new session in waiting status with the creator attached
// as its first participant.
func (a *App) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	sess := &models.Session{
		ID:               uuid.New(),
		Status:           models.SessionStatusWaiting,
		Settings:         req.Settings,
		CreatorID:        req.CreatorID,
		ScheduledStartAt: req.ScheduledStartAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Settings.IsPrivate {
		code, err := newInviteCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		sess.InviteCode = &code
	}
	sess.Participants = []models.Participant{{
		SessionID: sess.ID,
		UserID:    req.CreatorID,
		Odonym:    strings.TrimSpace(req.CreatorOdonym),
		IsActive:  true,
		IsCreator: true,
		JoinedAt:  now,
	}}

	if err := a.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("creator_id", req.CreatorID.String()).
		Bool("private", req.Settings.IsPrivate).
		Msg("session created")

	return sess, nil
}

// Get returns a session by id. Terminal sessions stay readable.
func (a *App) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// GetActiveForUser returns the caller's current non-terminal session, if any.
func (a *App) GetActiveForUser(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	return a.repo.GetActiveSessionForUser(ctx, userID)
}

// Snapshot derives the canonical timer view for a session at the server's now.
func (a *App) Snapshot(sess *models.Session) models.TimerSnapshot {
	return Snapshot(sess, a.clock.Now())
}

// Transition applies an explicit action for an actor. Start and cancel are
// creator-only. A stale status triggers one re-read and retry before the
// conflict surfaces.
func (a *App) Transition(ctx context.Context, sessionID uuid.UUID, action Action, actorID uuid.UUID) (*models.Session, error) {
	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CreatorID != actorID {
		return nil, apperrors.Permission("not_creator", "only the session creator can do that")
	}

	updated, err := a.applyCommandCAS(ctx, sess, action)
	if apperrors.IsStateConflict(err) {
		// One authoritative refetch-and-retry; a second conflict surfaces.
		sess, rerr := a.repo.GetSession(ctx, sessionID)
		if rerr != nil {
			return nil, rerr
		}
		updated, err = a.applyCommandCAS(ctx, sess, action)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Msg("session transition applied")

	return updated, nil
}

func (a *App) applyCommandCAS(ctx context.Context, sess *models.Session, action Action) (*models.Session, error) {
	now := a.clock.Now()
	mut, err := ApplyCommand(sess, action, now)
	if err != nil {
		return nil, err
	}

	updated, err := a.repo.UpdateStatusCAS(ctx, sess.ID, sess.Status, mut)
	if err != nil {
		return nil, err
	}

	a.emitStatusChanged(ctx, updated, sess.Status, now)
	return updated, nil
}

// Join attaches a user to a session. Private sessions admit the creator,
// previously accepted invitees, and anyone presenting the invite code.
func (a *App) Join(ctx context.Context, req JoinSessionRequest) (*models.Session, error) {
	if err := validateOdonym(req.Odonym); err != nil {
		return nil, err
	}

	sess, err := a.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, apperrors.StateConflict("session_ended", "session is no longer joinable")
	}

	if err := a.authorizeJoin(ctx, sess, req); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	participant := &models.Participant{
		SessionID: sess.ID,
		UserID:    req.UserID,
		Odonym:    strings.TrimSpace(req.Odonym),
		IsActive:  true,
		IsCreator: sess.CreatorID == req.UserID,
		JoinedAt:  now,
	}
	if err := a.repo.UpsertParticipant(ctx, participant); err != nil {
		return nil, err
	}

	a.emit(ctx, sess.ID, events.EventTypeParticipantJoined, events.ParticipantJoinedPayload{
		Odonym:    participant.Odonym,
		IsCreator: participant.IsCreator,
		JoinedAt:  now,
	})

	return a.repo.GetSession(ctx, req.SessionID)
}

func (a *App) authorizeJoin(ctx context.Context, sess *models.Session, req JoinSessionRequest) error {
	if !sess.Settings.IsPrivate || sess.CreatorID == req.UserID {
		return nil
	}

	accepted, err := a.repo.HasAcceptedInvite(ctx, sess.ID, req.UserID)
	if err != nil {
		return err
	}
	if accepted {
		return nil
	}

	if req.InviteCode == "" {
		return apperrors.Permission("private_session", "session is private")
	}
	if sess.InviteCode == nil || req.InviteCode != *sess.InviteCode {
		return apperrors.NotFound("invalid_invite", "invite code is invalid or expired")
	}
	return a.repo.AcceptInvite(ctx, sess.ID, req.UserID)
}

// Leave detaches a participant. When the last active participant leaves a
// non-terminal session, the session cancels itself.
func (a *App) Leave(ctx context.Context, sessionID, userID uuid.UUID) error {
	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	now := a.clock.Now()
	remaining, err := a.repo.DeactivateParticipant(ctx, sessionID, userID, now)
	if err != nil {
		return err
	}

	odonym := ""
	if p := sess.ParticipantByUser(userID); p != nil {
		odonym = p.Odonym
	}
	a.emit(ctx, sessionID, events.EventTypeParticipantLeft, events.ParticipantLeftPayload{
		Odonym: odonym,
		LeftAt: now,
	})

	if remaining == 0 && !sess.Status.Terminal() {
		a.cancelAbandoned(ctx, sessionID)
	}
	return nil
}

// cancelAbandoned cancels a session that lost its last active participant.
// The conditional write makes a race with a concurrent join or transition
// harmless: whoever loses simply no-ops.
func (a *App) cancelAbandoned(ctx context.Context, sessionID uuid.UUID) {
	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil || sess.Status.Terminal() {
		return
	}
	if sess.ActiveParticipants() > 0 {
		// Someone joined between the leave and this check.
		return
	}

	now := a.clock.Now()
	mut, err := ApplyCommand(sess, ActionCancel, now)
	if err != nil {
		return
	}
	updated, err := a.repo.UpdateStatusCAS(ctx, sessionID, sess.Status, mut)
	if err != nil {
		log.Debug().
			Str("session_id", sessionID.String()).
			Err(err).
			Msg("abandoned-session cancel lost the race")
		return
	}

	log.Info().Str("session_id", sessionID.String()).Msg("session cancelled: no active participants")
	a.emitStatusChanged(ctx, updated, sess.Status, now)
}

// React records a participant's transient reaction.
func (a *App) React(ctx context.Context, sessionID, userID uuid.UUID, reaction string) error {
	if err := validateReaction(reaction); err != nil {
		return err
	}

	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return apperrors.StateConflict("session_ended", "session is read-only")
	}

	if err := a.repo.SetReaction(ctx, sessionID, userID, reaction); err != nil {
		return err
	}

	odonym := ""
	if p := sess.ParticipantByUser(userID); p != nil {
		odonym = p.Odonym
	}
	a.emit(ctx, sessionID, events.EventTypeParticipantReaction, events.ParticipantReactionPayload{
		Odonym:   odonym,
		Reaction: reaction,
	})
	return nil
}

// ToggleChat enables or disables the chat sub-channel. Creator only.
func (a *App) ToggleChat(ctx context.Context, sessionID, actorID uuid.UUID, enabled bool) error {
	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CreatorID != actorID {
		return apperrors.Permission("not_creator", "only the session creator can toggle chat")
	}

	if err := a.repo.SetChatEnabled(ctx, sessionID, enabled); err != nil {
		return err
	}

	a.emit(ctx, sessionID, events.EventTypeChatToggled, events.ChatToggledPayload{Enabled: enabled})
	return nil
}

// emitStatusChanged publishes the status_changed event for a committed
// transition, with a snapshot taken at the transition instant.
func (a *App) emitStatusChanged(ctx context.Context, updated *models.Session, previous models.SessionStatus, at time.Time) {
	a.emit(ctx, updated.ID, events.EventTypeStatusChanged, events.StatusChangedPayload{
		PreviousStatus: previous,
		CurrentStatus:  updated.Status,
		Repetition:     updated.CurrentRepetition,
		Timer:          Snapshot(updated, at),
		ChangedAt:      at,
	})
}

// emit publishes best-effort: a push failure is logged, never propagated,
// because the fallback poll keeps clients correct.
func (a *App) emit(ctx context.Context, sessionID uuid.UUID, eventType events.EventType, payload interface{}) {
	if err := a.publisher.Publish(ctx, sessionID, eventType, payload); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish event")
	}
}

func newInviteCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
