package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry in a session's append-only message log.
// The server-assigned ID is the ordering and dedup key; a message is never
// mutated after being written.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Odonym    string    `json:"odonym"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}
