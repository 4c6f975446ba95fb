package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// Repository is the persistence contract for sessions and their participant
// sets. Status writes are conditional on the previously read status; the
// participant set is guarded by the same path so a join can never race a
// terminal transition into a lost update.
type Repository interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetActiveSessionForUser(ctx context.Context, userID uuid.UUID) (*models.Session, error)

	// UpdateStatusCAS writes mut only if the session's current status still
	// equals expected, returning the updated session. A stale expected
	// status yields a StateConflictError and no mutation.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, expected models.SessionStatus, mut StatusMutation) (*models.Session, error)

	// UpsertParticipant attaches (or re-activates) a participant, guarded by
	// the session being non-terminal.
	UpsertParticipant(ctx context.Context, p *models.Participant) error

	// DeactivateParticipant detaches a participant and reports how many
	// active participants remain, atomically with the detach.
	DeactivateParticipant(ctx context.Context, sessionID, userID uuid.UUID, leftAt time.Time) (remaining int, err error)

	SetReaction(ctx context.Context, sessionID, userID uuid.UUID, reaction string) error
	SetChatEnabled(ctx context.Context, sessionID uuid.UUID, enabled bool) error

	AcceptInvite(ctx context.Context, sessionID, userID uuid.UUID) error
	HasAcceptedInvite(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)

	// FetchDue returns sessions whose next deadline has passed, for the
	// natural-transition sweep.
	FetchDue(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)

	// FetchTicking returns sessions in a counting-down phase, for the
	// periodic timer_sync broadcast.
	FetchTicking(ctx context.Context) ([]uuid.UUID, error)
}
