package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// Connectivity describes the health of the push channel. Degraded
// (poll-only) operation is surfaced, never silently stale.
type Connectivity string

const (
	ConnectivityConnecting   Connectivity = "connecting"
	ConnectivityConnected    Connectivity = "connected"
	ConnectivityDisconnected Connectivity = "disconnected"
)

// SessionState is the locally-displayed view of a session.
type SessionState struct {
	Session          *models.Session
	Status           models.SessionStatus
	RemainingSeconds int
	Repetition       int
}

// Handler receives reconciled updates. It is an explicit object holding its
// own latest state, not a closure, so there is no stale-capture hazard.
type Handler interface {
	OnSessionUpdate(state SessionState)
	OnChatUpdate(messages []models.ChatMessage)
	OnConnectivityChange(status Connectivity)
}

// Fetcher is the authoritative pull path: the command/query API.
type Fetcher interface {
	FetchSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, models.TimerSnapshot, error)
	FetchActiveSession(ctx context.Context) (*models.Session, models.TimerSnapshot, error)
	FetchMessages(ctx context.Context, sessionID uuid.UUID) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, sessionID uuid.UUID, text string) (*models.ChatMessage, error)
	SendTyping(ctx context.Context, sessionID uuid.UUID, typing bool) error
}

// EventStream is one live push-channel subscription. The events channel
// closes when the stream drops; nothing is replayed on reconnect.
type EventStream interface {
	Events() <-chan *events.SessionEvent
	Close() error
}

// Transport opens push-channel subscriptions.
type Transport interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID, channel events.Channel) (EventStream, error)
}

// Config holds the reconciliation cadence.
type Config struct {
	// ActivePollInterval is the fallback poll period while a session view
	// is open.
	ActivePollInterval time.Duration
	// IdlePollInterval is the period of the passive active-session probe.
	IdlePollInterval time.Duration
	// ReconnectBackoff is the wait before a push-channel reconnect attempt.
	ReconnectBackoff time.Duration
	// PushLivenessWindow is how long the push channel may stay silent while
	// the session is in a ticking phase before the view is reported
	// disconnected. It should cover one server timer-sync period plus slack.
	PushLivenessWindow time.Duration
}

// DefaultConfig returns the default reconciliation cadence.
func DefaultConfig() Config {
	return Config{
		ActivePollInterval: 10 * time.Second,
		IdlePollInterval:   60 * time.Second,
		ReconnectBackoff:   3 * time.Second,
		PushLivenessWindow: 15 * time.Second,
	}
}
