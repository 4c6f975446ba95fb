package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// PostgresRepository persists sessions, participants, and invites.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

const sessionColumns = `id, status, settings, creator_id, invite_code, current_repetition,
	scheduled_start_at, started_at, phase_started_at, next_deadline, ended_at, created_at, updated_at`

func (r *PostgresRepository) CreateSession(ctx context.Context, sess *models.Session) error {
	settingsBytes, err := json.Marshal(sess.Settings)
	if err != nil {
		return fmt.Errorf("marshal session settings: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, status, settings, creator_id, invite_code,
			current_repetition, scheduled_start_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		sess.ID, sess.Status, settingsBytes, sess.CreatorID, sess.InviteCode,
		sess.CurrentRepetition, sess.ScheduledStartAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range sess.Participants {
		if err := insertParticipant(ctx, tx, &p); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, tx pgx.Tx, p *models.Participant) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, odonym, is_active, is_creator, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.SessionID, p.UserID, p.Odonym, p.IsActive, p.IsCreator, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("session_not_found", "session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := r.loadParticipants(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *PostgresRepository) GetActiveSessionForUser(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.status NOT IN ('COMPLETED', 'CANCELLED')
		  AND EXISTS (
			SELECT 1 FROM session_participants p
			WHERE p.session_id = s.id AND p.user_id = $1 AND p.is_active
		  )
		ORDER BY s.created_at DESC
		LIMIT 1`, userID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no_active_session", "no active session for user")
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if err := r.loadParticipants(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *PostgresRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expected models.SessionStatus, mut StatusMutation) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions
		SET status = $3,
		    current_repetition = $4,
		    started_at = $5,
		    phase_started_at = $6,
		    next_deadline = $7,
		    ended_at = $8,
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+sessionColumns,
		id, expected, mut.Status, mut.CurrentRepetition,
		mut.StartedAt, mut.PhaseStartedAt, mut.NextDeadline, mut.EndedAt)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the session is gone or another writer got there first.
			return nil, apperrors.StateConflict("stale_status",
				"session status changed since last read")
		}
		return nil, fmt.Errorf("conditional status update: %w", err)
	}
	if err := r.loadParticipants(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *PostgresRepository) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	// The non-terminal guard lives in the same statement as the write so a
	// join can never land on a session that just completed or cancelled.
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, odonym, is_active, is_creator, joined_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (
			SELECT 1 FROM sessions
			WHERE id = $1 AND status NOT IN ('COMPLETED', 'CANCELLED')
		)
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET odonym = EXCLUDED.odonym, is_active = true, left_at = NULL`,
		p.SessionID, p.UserID, p.Odonym, p.IsActive, p.IsCreator, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.StateConflict("session_ended", "session is no longer accepting participants")
	}
	return nil
}

func (r *PostgresRepository) DeactivateParticipant(ctx context.Context, sessionID, userID uuid.UUID, leftAt time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin deactivate: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE session_participants
		SET is_active = false, left_at = $3
		WHERE session_id = $1 AND user_id = $2 AND is_active`,
		sessionID, userID, leftAt)
	if err != nil {
		return 0, fmt.Errorf("deactivate participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperrors.NotFound("not_a_participant", "user is not an active participant")
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM session_participants
		WHERE session_id = $1 AND is_active`, sessionID).Scan(&remaining)
	if err != nil {
		return 0, fmt.Errorf("count active participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit deactivate: %w", err)
	}
	return remaining, nil
}

func (r *PostgresRepository) SetReaction(ctx context.Context, sessionID, userID uuid.UUID, reaction string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE session_participants
		SET last_reaction = $3
		WHERE session_id = $1 AND user_id = $2 AND is_active`,
		sessionID, userID, reaction)
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("not_a_participant", "user is not an active participant")
	}
	return nil
}

func (r *PostgresRepository) SetChatEnabled(ctx context.Context, sessionID uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET settings = jsonb_set(settings, '{chat_enabled}', to_jsonb($2::boolean)),
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'CANCELLED')`,
		sessionID, enabled)
	if err != nil {
		return fmt.Errorf("set chat enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.StateConflict("session_ended", "session is read-only")
	}
	return nil
}

func (r *PostgresRepository) AcceptInvite(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_invites (session_id, user_id, accepted_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("accept invite: %w", err)
	}
	return nil
}

func (r *PostgresRepository) HasAcceptedInvite(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var accepted bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_invites
			WHERE session_id = $1 AND user_id = $2
		)`, sessionID, userID).Scan(&accepted)
	if err != nil {
		return false, fmt.Errorf("check invite: %w", err)
	}
	return accepted, nil
}

func (r *PostgresRepository) FetchDue(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM sessions
		WHERE status NOT IN ('COMPLETED', 'CANCELLED', 'WAITING')
		  AND next_deadline IS NOT NULL
		  AND next_deadline <= $1
		ORDER BY next_deadline
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due sessions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PostgresRepository) FetchTicking(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM sessions
		WHERE status IN ('WARMUP', 'FOCUSING', 'BREAK', 'COOLDOWN')`)
	if err != nil {
		return nil, fmt.Errorf("fetch ticking sessions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) loadParticipants(ctx context.Context, sess *models.Session) error {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, user_id, odonym, is_active, is_creator, last_reaction, joined_at, left_at
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at`, sess.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Odonym, &p.IsActive,
			&p.IsCreator, &p.LastReaction, &p.JoinedAt, &p.LeftAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		sess.Participants = append(sess.Participants, p)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess          models.Session
		settingsBytes []byte
	)
	err := row.Scan(&sess.ID, &sess.Status, &settingsBytes, &sess.CreatorID,
		&sess.InviteCode, &sess.CurrentRepetition, &sess.ScheduledStartAt,
		&sess.StartedAt, &sess.PhaseStartedAt, &sess.NextDeadline, &sess.EndedAt,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settingsBytes, &sess.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal session settings: %w", err)
	}
	return &sess, nil
}
