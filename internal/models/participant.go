package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a user attached to a session under an ephemeral alias.
type Participant struct {
	SessionID    uuid.UUID  `json:"session_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Odonym       string     `json:"odonym"`
	IsActive     bool       `json:"is_active"`
	IsCreator    bool       `json:"is_creator"`
	LastReaction *string    `json:"last_reaction,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
}
