package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

func newTestSweeper(t *testing.T) (*Sweeper, *App, *memRepo, *recordingPublisher, *clockwork.FakeClock) {
	t.Helper()
	repo := newMemRepo()
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(baseTime)
	app := NewApp(repo, pub, clock)
	sweeper := NewSweeper(repo, pub, clock, time.Second, 10*time.Second)
	return sweeper, app, repo, pub, clock
}

func startFocusingSession(t *testing.T, app *App) *models.Session {
	t.Helper()
	creatorID := uuid.New()
	sess := createTestSession(t, app, creatorID, defaultSettings())
	updated, err := app.Transition(context.Background(), sess.ID, ActionStart, creatorID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusFocusing, updated.Status)
	return updated
}

func TestSweepNotYetDue(t *testing.T) {
	sweeper, app, repo, pub, _ := newTestSweeper(t)
	sess := startFocusingSession(t, app)
	before := len(pub.byType(events.EventTypeStatusChanged))

	sweeper.Sweep(context.Background())

	got, err := repo.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFocusing, got.Status)
	assert.Len(t, pub.byType(events.EventTypeStatusChanged), before)
}

func TestSweepAppliesDueTransition(t *testing.T) {
	sweeper, app, repo, pub, clock := newTestSweeper(t)
	sess := startFocusingSession(t, app)

	clock.Advance(25 * time.Minute)
	sweeper.Sweep(context.Background())

	got, err := repo.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusBreak, got.Status)
	assert.Equal(t, 1, got.CurrentRepetition)

	changed := pub.byType(events.EventTypeStatusChanged)
	last := changed[len(changed)-1].Payload.(events.StatusChangedPayload)
	assert.Equal(t, models.SessionStatusFocusing, last.PreviousStatus)
	assert.Equal(t, models.SessionStatusBreak, last.CurrentStatus)
}

// A sweep that observes several elapsed deadlines at once walks the session
// through every missed phase in one pass.
func TestSweepCatchesUpAcrossPhases(t *testing.T) {
	sweeper, app, repo, _, clock := newTestSweeper(t)
	sess := startFocusingSession(t, app)

	// 25m focus + 5m break + 25m focus + 3m cooldown, plus slack.
	clock.Advance(59 * time.Minute)
	sweeper.Sweep(context.Background())

	got, err := repo.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	assert.Equal(t, 2, got.CurrentRepetition)
	require.NotNil(t, got.EndedAt)
}

// Re-running a sweep over the same instant changes nothing and emits
// nothing new.
func TestSweepIdempotent(t *testing.T) {
	sweeper, app, repo, pub, clock := newTestSweeper(t)
	sess := startFocusingSession(t, app)

	clock.Advance(25 * time.Minute)
	sweeper.Sweep(context.Background())
	eventsAfterFirst := len(pub.byType(events.EventTypeStatusChanged))

	sweeper.Sweep(context.Background())
	sweeper.Sweep(context.Background())

	got, err := repo.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusBreak, got.Status)
	assert.Len(t, pub.byType(events.EventTypeStatusChanged), eventsAfterFirst)
}

func TestSweepWarmupEntersFocusAtSchedule(t *testing.T) {
	sweeper, app, repo, _, clock := newTestSweeper(t)
	creatorID := uuid.New()
	scheduled := clock.Now().Add(10 * time.Minute)
	sess, err := app.Create(context.Background(), CreateSessionRequest{
		CreatorID:        creatorID,
		CreatorOdonym:    "night owl",
		Settings:         defaultSettings(),
		ScheduledStartAt: &scheduled,
	})
	require.NoError(t, err)
	_, err = app.Transition(context.Background(), sess.ID, ActionStart, creatorID)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	sweeper.Sweep(context.Background())

	got, err := repo.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFocusing, got.Status)
	require.NotNil(t, got.PhaseStartedAt)
	assert.Equal(t, scheduled, got.PhaseStartedAt.UTC())
}

func TestBroadcastTimerSync(t *testing.T) {
	sweeper, app, _, pub, clock := newTestSweeper(t)
	sess := startFocusingSession(t, app)

	clock.Advance(5 * time.Minute)
	sweeper.BroadcastTimerSync(context.Background())

	syncs := pub.byType(events.EventTypeTimerSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, sess.ID, syncs[0].SessionID)
	payload := syncs[0].Payload.(events.TimerSyncPayload)
	assert.Equal(t, models.SessionStatusFocusing, payload.Status)
	assert.Equal(t, 20*60, payload.Timer.RemainingSeconds)
	assert.Equal(t, clock.Now(), payload.ServerTimestamp)
}

func TestBroadcastTimerSyncSkipsWaiting(t *testing.T) {
	sweeper, app, _, pub, _ := newTestSweeper(t)
	createTestSession(t, app, uuid.New(), defaultSettings())

	sweeper.BroadcastTimerSync(context.Background())
	assert.Empty(t, pub.byType(events.EventTypeTimerSync))
}
