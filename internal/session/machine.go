package session

import (
	"time"

	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// cooldownDuration is the fixed length of the wind-down phase between the
// final focus block and completion.
const cooldownDuration = 3 * time.Minute

// Action is an explicit, caller-issued state machine command.
type Action string

const (
	ActionStart  Action = "start"
	ActionCancel Action = "cancel"
)

// StatusMutation is the column set written by a conditional status update.
// Nil pointer fields clear the corresponding column.
type StatusMutation struct {
	Status            models.SessionStatus
	CurrentRepetition int
	StartedAt         *time.Time
	PhaseStartedAt    *time.Time
	NextDeadline      *time.Time
	EndedAt           *time.Time
}

// focusDuration is the length of one focus block.
func focusDuration(s models.SessionSettings) time.Duration {
	return time.Duration(s.MinDurationMin) * time.Minute
}

func breakDuration(s models.SessionSettings) time.Duration {
	return time.Duration(s.BreakDurationMin) * time.Minute
}

// breakDue reports whether a break follows the block that just completed.
// Breaks fall after every BreakInterval completed blocks; the final block
// never gets one (it flows into cooldown), and when Repetitions does not
// divide evenly the remainder blocks run back to back.
func breakDue(s models.SessionSettings, completedBlocks int) bool {
	if completedBlocks >= s.Repetitions {
		return false
	}
	if s.BreakInterval <= 0 {
		return false
	}
	return completedBlocks%s.BreakInterval == 0
}

// ApplyCommand validates an explicit action against the current status and
// computes the resulting mutation. It performs no permission checks; the
// caller owns those.
func ApplyCommand(sess *models.Session, action Action, now time.Time) (StatusMutation, error) {
	switch action {
	case ActionStart:
		if sess.Status != models.SessionStatusWaiting {
			return StatusMutation{}, apperrors.StateConflict("illegal_transition",
				"session can only be started from waiting")
		}
		started := now
		if sess.ScheduledStartAt != nil && sess.ScheduledStartAt.After(now) {
			deadline := *sess.ScheduledStartAt
			return StatusMutation{
				Status:         models.SessionStatusWarmup,
				StartedAt:      &started,
				PhaseStartedAt: &started,
				NextDeadline:   &deadline,
			}, nil
		}
		deadline := now.Add(focusDuration(sess.Settings))
		return StatusMutation{
			Status:         models.SessionStatusFocusing,
			StartedAt:      &started,
			PhaseStartedAt: &started,
			NextDeadline:   &deadline,
		}, nil

	case ActionCancel:
		if sess.Status.Terminal() {
			return StatusMutation{}, apperrors.StateConflict("illegal_transition",
				"session already ended")
		}
		ended := now
		return StatusMutation{
			Status:            models.SessionStatusCancelled,
			CurrentRepetition: sess.CurrentRepetition,
			StartedAt:         sess.StartedAt,
			PhaseStartedAt:    sess.PhaseStartedAt,
			EndedAt:           &ended,
		}, nil

	default:
		return StatusMutation{}, apperrors.Validation("unknown_action", "unknown session action")
	}
}

// NextNatural computes the time-elapsed transition for a session whose
// deadline has passed. The second return is false when the session has no
// due natural edge, which makes re-running the sweep a no-op.
func NextNatural(sess *models.Session, now time.Time) (StatusMutation, bool) {
	if sess.Status.Terminal() || sess.NextDeadline == nil || sess.NextDeadline.After(now) {
		return StatusMutation{}, false
	}

	boundary := *sess.NextDeadline

	switch sess.Status {
	case models.SessionStatusWarmup:
		deadline := boundary.Add(focusDuration(sess.Settings))
		return StatusMutation{
			Status:            models.SessionStatusFocusing,
			CurrentRepetition: sess.CurrentRepetition,
			StartedAt:         sess.StartedAt,
			PhaseStartedAt:    &boundary,
			NextDeadline:      &deadline,
		}, true

	case models.SessionStatusFocusing:
		completed := sess.CurrentRepetition + 1
		if completed >= sess.Settings.Repetitions {
			deadline := boundary.Add(cooldownDuration)
			return StatusMutation{
				Status:            models.SessionStatusCooldown,
				CurrentRepetition: completed,
				StartedAt:         sess.StartedAt,
				PhaseStartedAt:    &boundary,
				NextDeadline:      &deadline,
			}, true
		}
		if breakDue(sess.Settings, completed) {
			deadline := boundary.Add(breakDuration(sess.Settings))
			return StatusMutation{
				Status:            models.SessionStatusBreak,
				CurrentRepetition: completed,
				StartedAt:         sess.StartedAt,
				PhaseStartedAt:    &boundary,
				NextDeadline:      &deadline,
			}, true
		}
		deadline := boundary.Add(focusDuration(sess.Settings))
		return StatusMutation{
			Status:            models.SessionStatusFocusing,
			CurrentRepetition: completed,
			StartedAt:         sess.StartedAt,
			PhaseStartedAt:    &boundary,
			NextDeadline:      &deadline,
		}, true

	case models.SessionStatusBreak:
		deadline := boundary.Add(focusDuration(sess.Settings))
		return StatusMutation{
			Status:            models.SessionStatusFocusing,
			CurrentRepetition: sess.CurrentRepetition,
			StartedAt:         sess.StartedAt,
			PhaseStartedAt:    &boundary,
			NextDeadline:      &deadline,
		}, true

	case models.SessionStatusCooldown:
		ended := boundary
		return StatusMutation{
			Status:            models.SessionStatusCompleted,
			CurrentRepetition: sess.CurrentRepetition,
			StartedAt:         sess.StartedAt,
			PhaseStartedAt:    sess.PhaseStartedAt,
			EndedAt:           &ended,
		}, true

	default:
		return StatusMutation{}, false
	}
}

// phaseTarget returns the full duration of the session's current phase.
func phaseTarget(sess *models.Session) time.Duration {
	switch sess.Status {
	case models.SessionStatusFocusing:
		return focusDuration(sess.Settings)
	case models.SessionStatusBreak:
		return breakDuration(sess.Settings)
	case models.SessionStatusCooldown:
		return cooldownDuration
	case models.SessionStatusWarmup:
		if sess.PhaseStartedAt != nil && sess.NextDeadline != nil {
			return sess.NextDeadline.Sub(*sess.PhaseStartedAt)
		}
	}
	return 0
}

// Snapshot derives the canonical countdown view for a session at now.
func Snapshot(sess *models.Session, now time.Time) models.TimerSnapshot {
	snap := models.TimerSnapshot{
		TargetDurationMin: int(phaseTarget(sess) / time.Minute),
		ServerTimestamp:   now,
	}
	if sess.NextDeadline != nil {
		snap.RemainingSeconds = int(sess.NextDeadline.Sub(now) / time.Second)
	}
	if sess.PhaseStartedAt != nil {
		snap.ElapsedSeconds = int(now.Sub(*sess.PhaseStartedAt) / time.Second)
	}
	snap.Clamp()
	return snap
}
