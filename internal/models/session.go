package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the status of a focus session.
type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "WAITING"
	SessionStatusWarmup    SessionStatus = "WARMUP"
	SessionStatusFocusing  SessionStatus = "FOCUSING"
	SessionStatusBreak     SessionStatus = "BREAK"
	SessionStatusCooldown  SessionStatus = "COOLDOWN"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// SessionSettings holds the timing configuration for a session.
type SessionSettings struct {
	MinDurationMin   int  `json:"min_duration_min"`
	MaxDurationMin   int  `json:"max_duration_min"`
	Repetitions      int  `json:"repetitions"`
	BreakDurationMin int  `json:"break_duration_min"`
	BreakInterval    int  `json:"break_interval"`
	IsPrivate        bool `json:"is_private"`
	ChatEnabled      bool `json:"chat_enabled"`
}

// Session represents a collaborative focus session.
//
// CurrentRepetition counts completed focus blocks (0 while waiting).
// PhaseStartedAt marks the start of the current phase; NextDeadline is the
// instant at which the current phase naturally elapses and drives the sweep.
type Session struct {
	ID                uuid.UUID       `json:"id"`
	Status            SessionStatus   `json:"status"`
	Settings          SessionSettings `json:"settings"`
	CreatorID         uuid.UUID       `json:"creator_id"`
	InviteCode        *string         `json:"invite_code,omitempty"`
	CurrentRepetition int             `json:"current_repetition"`
	ScheduledStartAt  *time.Time      `json:"scheduled_start_at,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	PhaseStartedAt    *time.Time      `json:"phase_started_at,omitempty"`
	NextDeadline      *time.Time      `json:"next_deadline,omitempty"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Participants      []Participant   `json:"participants,omitempty"`
}

// ActiveParticipants returns the number of currently attached participants.
func (s *Session) ActiveParticipants() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

// ParticipantByUser returns the participant record for a user, if any.
func (s *Session) ParticipantByUser(userID uuid.UUID) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}
