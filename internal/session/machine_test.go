package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(status models.SessionStatus, settings models.SessionSettings) *models.Session {
	return &models.Session{
		ID:       uuid.New(),
		Status:   status,
		Settings: settings,
	}
}

func defaultSettings() models.SessionSettings {
	return models.SessionSettings{
		MinDurationMin:   25,
		MaxDurationMin:   30,
		Repetitions:      2,
		BreakDurationMin: 5,
		BreakInterval:    1,
		ChatEnabled:      true,
	}
}

func TestApplyCommandStart(t *testing.T) {
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())

	mut, err := ApplyCommand(sess, ActionStart, baseTime)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusFocusing, mut.Status)
	require.NotNil(t, mut.StartedAt)
	assert.Equal(t, baseTime, *mut.StartedAt)
	require.NotNil(t, mut.NextDeadline)
	assert.Equal(t, baseTime.Add(25*time.Minute), *mut.NextDeadline)
}

func TestApplyCommandStartScheduledInFuture(t *testing.T) {
	scheduled := baseTime.Add(10 * time.Minute)
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())
	sess.ScheduledStartAt = &scheduled

	mut, err := ApplyCommand(sess, ActionStart, baseTime)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusWarmup, mut.Status)
	require.NotNil(t, mut.NextDeadline)
	assert.Equal(t, scheduled, *mut.NextDeadline)
}

func TestApplyCommandStartScheduledInPast(t *testing.T) {
	scheduled := baseTime.Add(-10 * time.Minute)
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())
	sess.ScheduledStartAt = &scheduled

	mut, err := ApplyCommand(sess, ActionStart, baseTime)
	require.NoError(t, err)

	// A past schedule skips warmup entirely.
	assert.Equal(t, models.SessionStatusFocusing, mut.Status)
}

func TestApplyCommandStartFromNonWaiting(t *testing.T) {
	for _, status := range []models.SessionStatus{
		models.SessionStatusFocusing,
		models.SessionStatusBreak,
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
	} {
		sess := newTestSession(status, defaultSettings())
		_, err := ApplyCommand(sess, ActionStart, baseTime)
		assert.True(t, apperrors.IsStateConflict(err), "start from %s should conflict", status)
	}
}

func TestApplyCommandCancel(t *testing.T) {
	sess := newTestSession(models.SessionStatusFocusing, defaultSettings())
	sess.CurrentRepetition = 1

	mut, err := ApplyCommand(sess, ActionCancel, baseTime)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusCancelled, mut.Status)
	assert.Equal(t, 1, mut.CurrentRepetition)
	require.NotNil(t, mut.EndedAt)
	assert.Equal(t, baseTime, *mut.EndedAt)
}

func TestApplyCommandCancelTerminal(t *testing.T) {
	sess := newTestSession(models.SessionStatusCompleted, defaultSettings())
	_, err := ApplyCommand(sess, ActionCancel, baseTime)
	assert.True(t, apperrors.IsStateConflict(err))
}

func TestApplyCommandUnknownAction(t *testing.T) {
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())
	_, err := ApplyCommand(sess, Action("pause"), baseTime)
	assert.True(t, apperrors.IsValidation(err))
}

func TestNextNaturalNotDue(t *testing.T) {
	deadline := baseTime.Add(time.Minute)
	sess := newTestSession(models.SessionStatusFocusing, defaultSettings())
	sess.NextDeadline = &deadline

	_, due := NextNatural(sess, baseTime)
	assert.False(t, due)
}

func TestNextNaturalNoDeadline(t *testing.T) {
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())
	_, due := NextNatural(sess, baseTime)
	assert.False(t, due)
}

func TestNextNaturalTerminal(t *testing.T) {
	deadline := baseTime.Add(-time.Minute)
	sess := newTestSession(models.SessionStatusCancelled, defaultSettings())
	sess.NextDeadline = &deadline

	_, due := NextNatural(sess, baseTime)
	assert.False(t, due)
}

// The deadline itself, not the observation time, anchors the next phase, so
// a late sweep does not stretch the session.
func TestNextNaturalAnchorsOnDeadline(t *testing.T) {
	deadline := baseTime
	sess := newTestSession(models.SessionStatusBreak, defaultSettings())
	sess.CurrentRepetition = 1
	sess.NextDeadline = &deadline

	lateNow := baseTime.Add(42 * time.Second)
	mut, due := NextNatural(sess, lateNow)
	require.True(t, due)

	assert.Equal(t, models.SessionStatusFocusing, mut.Status)
	assert.Equal(t, deadline, *mut.PhaseStartedAt)
	assert.Equal(t, deadline.Add(25*time.Minute), *mut.NextDeadline)
}

func TestNextNaturalBreakSchedule(t *testing.T) {
	tests := []struct {
		name       string
		settings   models.SessionSettings
		repetition int
		want       models.SessionStatus
	}{
		{
			name:       "break after each block",
			settings:   models.SessionSettings{MinDurationMin: 25, Repetitions: 3, BreakDurationMin: 5, BreakInterval: 1},
			repetition: 0,
			want:       models.SessionStatusBreak,
		},
		{
			name:       "no break mid interval",
			settings:   models.SessionSettings{MinDurationMin: 25, Repetitions: 5, BreakDurationMin: 5, BreakInterval: 2},
			repetition: 0,
			want:       models.SessionStatusFocusing,
		},
		{
			name:       "break at interval boundary",
			settings:   models.SessionSettings{MinDurationMin: 25, Repetitions: 5, BreakDurationMin: 5, BreakInterval: 2},
			repetition: 1,
			want:       models.SessionStatusBreak,
		},
		{
			name:       "final block goes to cooldown not break",
			settings:   models.SessionSettings{MinDurationMin: 25, Repetitions: 2, BreakDurationMin: 5, BreakInterval: 1},
			repetition: 1,
			want:       models.SessionStatusCooldown,
		},
		{
			name:       "zero interval means no breaks",
			settings:   models.SessionSettings{MinDurationMin: 25, Repetitions: 3, BreakInterval: 0},
			repetition: 0,
			want:       models.SessionStatusFocusing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deadline := baseTime
			sess := newTestSession(models.SessionStatusFocusing, tt.settings)
			sess.CurrentRepetition = tt.repetition
			sess.NextDeadline = &deadline

			mut, due := NextNatural(sess, baseTime)
			require.True(t, due)
			assert.Equal(t, tt.want, mut.Status)
			assert.Equal(t, tt.repetition+1, mut.CurrentRepetition)
		})
	}
}

// Full lifecycle with min 25, reps 2, break 5, interval 1: the phase edge
// sequence is focusing, break, focusing, cooldown, completed, with phase
// lengths 25m, 5m, 25m, 3m.
func TestNaturalLifecycle(t *testing.T) {
	sess := newTestSession(models.SessionStatusWaiting, defaultSettings())

	start, err := ApplyCommand(sess, ActionStart, baseTime)
	require.NoError(t, err)
	apply(sess, start)
	require.Equal(t, models.SessionStatusFocusing, sess.Status)

	type edge struct {
		status models.SessionStatus
		length time.Duration
	}
	expected := []edge{
		{models.SessionStatusBreak, 5 * time.Minute},
		{models.SessionStatusFocusing, 25 * time.Minute},
		{models.SessionStatusCooldown, 3 * time.Minute},
	}

	for _, want := range expected {
		now := *sess.NextDeadline
		mut, due := NextNatural(sess, now)
		require.True(t, due, "expected a due edge into %s", want.status)
		assert.Equal(t, want.status, mut.Status)
		assert.Equal(t, want.length, mut.NextDeadline.Sub(*mut.PhaseStartedAt))
		apply(sess, mut)
	}

	now := *sess.NextDeadline
	mut, due := NextNatural(sess, now)
	require.True(t, due)
	assert.Equal(t, models.SessionStatusCompleted, mut.Status)
	assert.Equal(t, 2, mut.CurrentRepetition)
	require.NotNil(t, mut.EndedAt)
	apply(sess, mut)

	_, due = NextNatural(sess, now.Add(time.Hour))
	assert.False(t, due, "completed session must have no further edges")
}

func apply(sess *models.Session, mut StatusMutation) {
	sess.Status = mut.Status
	sess.CurrentRepetition = mut.CurrentRepetition
	sess.StartedAt = mut.StartedAt
	sess.PhaseStartedAt = mut.PhaseStartedAt
	sess.NextDeadline = mut.NextDeadline
	sess.EndedAt = mut.EndedAt
}

func TestSnapshotMidPhase(t *testing.T) {
	phaseStart := baseTime
	deadline := baseTime.Add(25 * time.Minute)
	sess := newTestSession(models.SessionStatusFocusing, defaultSettings())
	sess.PhaseStartedAt = &phaseStart
	sess.NextDeadline = &deadline

	snap := Snapshot(sess, baseTime.Add(10*time.Minute))
	assert.Equal(t, 15*60, snap.RemainingSeconds)
	assert.Equal(t, 10*60, snap.ElapsedSeconds)
	assert.Equal(t, 25, snap.TargetDurationMin)
}

func TestSnapshotPastDeadlineClampsToZero(t *testing.T) {
	phaseStart := baseTime
	deadline := baseTime.Add(25 * time.Minute)
	sess := newTestSession(models.SessionStatusFocusing, defaultSettings())
	sess.PhaseStartedAt = &phaseStart
	sess.NextDeadline = &deadline

	snap := Snapshot(sess, deadline.Add(time.Minute))
	assert.Equal(t, 0, snap.RemainingSeconds)
}
