package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// memRepo is an in-memory Repository with the same conditional-write
// semantics as the Postgres implementation.
type memRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	invites  map[uuid.UUID]map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: make(map[uuid.UUID]*models.Session),
		invites:  make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

var _ Repository = (*memRepo)(nil)

func copySession(sess *models.Session) *models.Session {
	out := *sess
	out.Participants = append([]models.Participant(nil), sess.Participants...)
	return &out
}

func (r *memRepo) CreateSession(_ context.Context, sess *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = copySession(sess)
	return nil
}

func (r *memRepo) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session_not_found", "session not found")
	}
	return copySession(sess), nil
}

func (r *memRepo) GetActiveSessionForUser(_ context.Context, userID uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		if sess.Status.Terminal() {
			continue
		}
		if p := sess.ParticipantByUser(userID); p != nil && p.IsActive {
			return copySession(sess), nil
		}
	}
	return nil, apperrors.NotFound("no_active_session", "no active session for user")
}

func (r *memRepo) UpdateStatusCAS(_ context.Context, id uuid.UUID, expected models.SessionStatus, mut StatusMutation) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok || sess.Status != expected {
		return nil, apperrors.StateConflict("stale_status", "session status changed since last read")
	}
	sess.Status = mut.Status
	sess.CurrentRepetition = mut.CurrentRepetition
	sess.StartedAt = mut.StartedAt
	sess.PhaseStartedAt = mut.PhaseStartedAt
	sess.NextDeadline = mut.NextDeadline
	sess.EndedAt = mut.EndedAt
	return copySession(sess), nil
}

func (r *memRepo) UpsertParticipant(_ context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[p.SessionID]
	if !ok || sess.Status.Terminal() {
		return apperrors.StateConflict("session_ended", "session is no longer accepting participants")
	}
	if existing := sess.ParticipantByUser(p.UserID); existing != nil {
		existing.Odonym = p.Odonym
		existing.IsActive = true
		existing.LeftAt = nil
		return nil
	}
	sess.Participants = append(sess.Participants, *p)
	return nil
}

func (r *memRepo) DeactivateParticipant(_ context.Context, sessionID, userID uuid.UUID, leftAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return 0, apperrors.NotFound("session_not_found", "session not found")
	}
	p := sess.ParticipantByUser(userID)
	if p == nil || !p.IsActive {
		return 0, apperrors.NotFound("not_a_participant", "user is not an active participant")
	}
	p.IsActive = false
	left := leftAt
	p.LeftAt = &left
	return sess.ActiveParticipants(), nil
}

func (r *memRepo) SetReaction(_ context.Context, sessionID, userID uuid.UUID, reaction string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session_not_found", "session not found")
	}
	p := sess.ParticipantByUser(userID)
	if p == nil || !p.IsActive {
		return apperrors.NotFound("not_a_participant", "user is not an active participant")
	}
	p.LastReaction = &reaction
	return nil
}

func (r *memRepo) SetChatEnabled(_ context.Context, sessionID uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok || sess.Status.Terminal() {
		return apperrors.StateConflict("session_ended", "session is read-only")
	}
	sess.Settings.ChatEnabled = enabled
	return nil
}

func (r *memRepo) AcceptInvite(_ context.Context, sessionID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invites[sessionID] == nil {
		r.invites[sessionID] = make(map[uuid.UUID]bool)
	}
	r.invites[sessionID][userID] = true
	return nil
}

func (r *memRepo) HasAcceptedInvite(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invites[sessionID][userID], nil
}

func (r *memRepo) FetchDue(_ context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, sess := range r.sessions {
		if sess.Status.Terminal() || sess.Status == models.SessionStatusWaiting {
			continue
		}
		if sess.NextDeadline != nil && !sess.NextDeadline.After(now) {
			ids = append(ids, id)
		}
		if len(ids) == int(limit) {
			break
		}
	}
	return ids, nil
}

func (r *memRepo) FetchTicking(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, sess := range r.sessions {
		switch sess.Status {
		case models.SessionStatusWarmup, models.SessionStatusFocusing,
			models.SessionStatusBreak, models.SessionStatusCooldown:
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	SessionID uuid.UUID
	Type      events.EventType
	Payload   interface{}
}

var _ events.Publisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(_ context.Context, sessionID uuid.UUID, eventType events.EventType, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{SessionID: sessionID, Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) byType(t events.EventType) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
