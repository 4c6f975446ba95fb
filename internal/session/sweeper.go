package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

const sweepBatchSize = 64

// Sweeper drives natural (time-elapsed) transitions as one centralized
// reconciliation pass instead of scattered per-request checks. Re-running a
// pass after a transition already fired is a no-op: the conditional write
// fails harmlessly and no duplicate event is emitted.
//
// The same loop broadcasts periodic timer_sync events for sessions in a
// counting-down phase.
type Sweeper struct {
	repo      Repository
	publisher events.Publisher
	clock     clockwork.Clock

	sweepInterval time.Duration
	syncInterval  time.Duration
}

func NewSweeper(repo Repository, publisher events.Publisher, clock clockwork.Clock, sweepInterval, syncInterval time.Duration) *Sweeper {
	return &Sweeper{
		repo:          repo,
		publisher:     publisher,
		clock:         clock,
		sweepInterval: sweepInterval,
		syncInterval:  syncInterval,
	}
}

// Run loops until ctx is done. Ticks never stack: the next tick is scheduled
// only after the previous pass completes.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().
		Dur("sweep_interval", s.sweepInterval).
		Dur("sync_interval", s.syncInterval).
		Msg("session sweeper started")

	sweepTimer := s.clock.NewTimer(s.sweepInterval)
	defer sweepTimer.Stop()
	syncTimer := s.clock.NewTimer(s.syncInterval)
	defer syncTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper shutting down")
			return nil
		case <-sweepTimer.Chan():
			s.Sweep(ctx)
			sweepTimer.Reset(s.sweepInterval)
		case <-syncTimer.Chan():
			s.BroadcastTimerSync(ctx)
			syncTimer.Reset(s.syncInterval)
		}
	}
}

// Sweep applies every due natural transition once. A failure in one
// session's handling never affects another's.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()
	ids, err := s.repo.FetchDue(ctx, now, sweepBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch due sessions")
		return
	}

	for _, id := range ids {
		if err := s.SweepSession(ctx, id); err != nil {
			log.Error().
				Err(err).
				Str("session_id", id.String()).
				Msg("sweep failed for session")
		}
	}
}

// SweepSession advances one session through every natural transition it is
// currently due for. Losing the conditional write to a concurrent writer is
// not an error: the transition already happened.
func (s *Sweeper) SweepSession(ctx context.Context, id uuid.UUID) error {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return err
	}

	for {
		now := s.clock.Now()
		mut, due := NextNatural(sess, now)
		if !due {
			return nil
		}

		updated, err := s.repo.UpdateStatusCAS(ctx, sess.ID, sess.Status, mut)
		if err != nil {
			if apperrors.IsStateConflict(err) {
				log.Debug().
					Str("session_id", id.String()).
					Msg("natural transition already applied elsewhere")
				return nil
			}
			return err
		}

		log.Info().
			Str("session_id", id.String()).
			Str("from", string(sess.Status)).
			Str("to", string(updated.Status)).
			Int("repetition", updated.CurrentRepetition).
			Msg("natural transition applied")

		s.emitStatusChanged(ctx, updated, sess.Status, now)
		sess = updated
	}
}

// BroadcastTimerSync publishes a timer_sync snapshot for every session in a
// counting-down phase.
func (s *Sweeper) BroadcastTimerSync(ctx context.Context) {
	ids, err := s.repo.FetchTicking(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch ticking sessions")
		return
	}

	for _, id := range ids {
		sess, err := s.repo.GetSession(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("timer sync fetch failed")
			continue
		}
		if sess.Status.Terminal() {
			continue
		}

		now := s.clock.Now()
		payload := events.TimerSyncPayload{
			Status:          sess.Status,
			Timer:           Snapshot(sess, now),
			ServerTimestamp: now,
		}
		if err := s.publisher.Publish(ctx, sess.ID, events.EventTypeTimerSync, payload); err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("timer sync publish failed")
		}
	}
}

func (s *Sweeper) emitStatusChanged(ctx context.Context, updated *models.Session, previous models.SessionStatus, at time.Time) {
	payload := events.StatusChangedPayload{
		PreviousStatus: previous,
		CurrentStatus:  updated.Status,
		Repetition:     updated.CurrentRepetition,
		Timer:          Snapshot(updated, at),
		ChangedAt:      at,
	}
	if err := s.publisher.Publish(ctx, updated.ID, events.EventTypeStatusChanged, payload); err != nil {
		log.Error().
			Err(err).
			Str("session_id", updated.ID.String()).
			Msg("failed to publish status_changed")
	}
}
