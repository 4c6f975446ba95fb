package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// Repository is the append-only message log. Messages are immutable once
// written; there is no update or delete path.
type Repository interface {
	Insert(ctx context.Context, msg *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int32) ([]models.ChatMessage, error)
}

// PostgresRepository stores chat messages in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Insert(ctx context.Context, msg *models.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, odonym, text, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessionID, msg.Odonym, msg.Text, msg.SentAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int32) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, odonym, text, sent_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY sent_at, id
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Odonym, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
