package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// CreateSessionRequest carries the creator's configuration for a new session.
type CreateSessionRequest struct {
	CreatorID        uuid.UUID
	CreatorOdonym    string
	Settings         models.SessionSettings
	ScheduledStartAt *time.Time
}

// JoinSessionRequest attaches a user to a session under an odonym.
type JoinSessionRequest struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	Odonym     string
	InviteCode string
}

const (
	maxOdonymLen   = 32
	maxRepetitions = 16
	maxDurationMin = 240
	maxBreakMin    = 60
)

var allowedReactions = map[string]bool{
	"thumbs_up": true,
	"fire":      true,
	"coffee":    true,
	"sleepy":    true,
	"wave":      true,
}

// Validate checks a create request for malformed input.
func (r CreateSessionRequest) Validate() error {
	s := r.Settings
	if s.MinDurationMin < 1 || s.MinDurationMin > maxDurationMin {
		return apperrors.Validation("invalid_duration", "min duration out of range")
	}
	if s.MaxDurationMin < s.MinDurationMin || s.MaxDurationMin > maxDurationMin {
		return apperrors.Validation("invalid_duration", "max duration must be >= min duration")
	}
	if s.Repetitions < 1 || s.Repetitions > maxRepetitions {
		return apperrors.Validation("invalid_repetitions", "repetitions out of range")
	}
	if s.BreakDurationMin < 0 || s.BreakDurationMin > maxBreakMin {
		return apperrors.Validation("invalid_break", "break duration out of range")
	}
	if s.BreakInterval < 0 || s.BreakInterval > s.Repetitions {
		return apperrors.Validation("invalid_break", "break interval out of range")
	}
	if s.BreakInterval > 0 && s.Repetitions > 1 && s.BreakDurationMin < 1 {
		return apperrors.Validation("invalid_break", "break duration required when breaks are scheduled")
	}
	if err := validateOdonym(r.CreatorOdonym); err != nil {
		return err
	}
	return nil
}

func validateOdonym(odonym string) error {
	trimmed := strings.TrimSpace(odonym)
	if trimmed == "" || len(trimmed) > maxOdonymLen {
		return apperrors.Validation("invalid_odonym", "odonym must be 1-32 characters")
	}
	return nil
}

func validateReaction(reaction string) error {
	if !allowedReactions[reaction] {
		return apperrors.Validation("invalid_reaction", "unknown reaction")
	}
	return nil
}
