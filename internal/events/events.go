package events

import (
	"encoding/json"
	"time"

	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// SessionEvent is the envelope broadcast for every session and chat event.
type SessionEvent struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// EventType tags the payload carried by a SessionEvent.
type EventType string

const (
	EventTypeStatusChanged       EventType = "status_changed"
	EventTypeParticipantJoined   EventType = "participant_joined"
	EventTypeParticipantLeft     EventType = "participant_left"
	EventTypeParticipantReaction EventType = "participant_reaction"
	EventTypeTimerSync           EventType = "timer_sync"
	EventTypeChatToggled         EventType = "chat_toggled"
	EventTypeChatMessage         EventType = "chat_message"
	EventTypeChatTyping          EventType = "chat_typing"
)

// Channel is the push channel an event type travels on.
type Channel string

const (
	ChannelSession Channel = "session"
	ChannelChat    Channel = "chat"
)

// ChannelOf returns the channel an event type belongs to.
func ChannelOf(t EventType) Channel {
	switch t {
	case EventTypeChatMessage, EventTypeChatTyping:
		return ChannelChat
	default:
		return ChannelSession
	}
}

// StatusChangedPayload carries a committed state-machine transition together
// with a fresh timer snapshot.
type StatusChangedPayload struct {
	PreviousStatus models.SessionStatus `json:"previous_status"`
	CurrentStatus  models.SessionStatus `json:"current_status"`
	Repetition     int                  `json:"repetition"`
	Timer          models.TimerSnapshot `json:"timer"`
	ChangedAt      time.Time            `json:"changed_at"`
}

// ParticipantJoinedPayload is emitted when a participant attaches.
type ParticipantJoinedPayload struct {
	Odonym    string    `json:"odonym"`
	IsCreator bool      `json:"is_creator"`
	JoinedAt  time.Time `json:"joined_at"`
}

// ParticipantLeftPayload is emitted when a participant detaches.
type ParticipantLeftPayload struct {
	Odonym string    `json:"odonym"`
	LeftAt time.Time `json:"left_at"`
}

// ParticipantReactionPayload carries a transient reaction update.
type ParticipantReactionPayload struct {
	Odonym   string `json:"odonym"`
	Reaction string `json:"reaction"`
}

// TimerSyncPayload is the periodic countdown broadcast. Clients compare
// ServerTimestamp against their local receipt time to compensate delivery delay.
type TimerSyncPayload struct {
	Status          models.SessionStatus `json:"status"`
	Timer           models.TimerSnapshot `json:"timer"`
	ServerTimestamp time.Time            `json:"server_timestamp"`
}

// ChatToggledPayload is emitted when the creator enables or disables chat.
type ChatToggledPayload struct {
	Enabled bool `json:"enabled"`
}

// ChatMessagePayload carries the authoritative copy of an appended message.
// ID always equals the id returned by the send command for the same message.
type ChatMessagePayload struct {
	ID     string    `json:"id"`
	Odonym string    `json:"odonym"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// ChatTypingPayload is a fire-and-forget typing indicator.
type ChatTypingPayload struct {
	Odonym string `json:"odonym"`
	Typing bool   `json:"typing"`
}

// ParsePayload decodes the event payload into its typed struct.
func ParsePayload(event *SessionEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeStatusChanged:
		var p StatusChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeParticipantJoined:
		var p ParticipantJoinedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeParticipantLeft:
		var p ParticipantLeftPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeParticipantReaction:
		var p ParticipantReactionPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeTimerSync:
		var p TimerSyncPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeChatToggled:
		var p ChatToggledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeChatMessage:
		var p ChatMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeChatTyping:
		var p ChatTypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
