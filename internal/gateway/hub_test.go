package gateway

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimmyxpow/focus-sub001/internal/events"
)

func newEvent(sessionID uuid.UUID, eventType events.EventType) *events.SessionEvent {
	return &events.SessionEvent{
		EventID:   uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      eventType,
	}
}

func TestHubJoinIdempotent(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()

	first := hub.Join(sessionID, events.ChannelSession, "sub-1")
	second := hub.Join(sessionID, events.ChannelSession, "sub-1")

	assert.Same(t, first, second)
	total, channels := hub.Stats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, channels)
}

func TestHubLeaveIdempotent(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()

	sub := hub.Join(sessionID, events.ChannelSession, "sub-1")
	hub.Leave(sessionID, events.ChannelSession, "sub-1")
	hub.Leave(sessionID, events.ChannelSession, "sub-1")
	hub.Leave(sessionID, events.ChannelSession, "never-joined")

	_, open := <-sub.Events()
	assert.False(t, open, "events channel should be closed after leave")

	total, _ := hub.Stats()
	assert.Equal(t, 0, total)
}

func TestHubEmitDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()

	a := hub.Join(sessionID, events.ChannelSession, "sub-a")
	b := hub.Join(sessionID, events.ChannelSession, "sub-b")

	ev := newEvent(sessionID, events.EventTypeStatusChanged)
	hub.Emit(ev)

	assert.Equal(t, ev, <-a.Events())
	assert.Equal(t, ev, <-b.Events())
}

// Emission order is preserved within a single subscriber.
func TestHubEmitOrdering(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()
	sub := hub.Join(sessionID, events.ChannelSession, "sub-1")

	var sent []*events.SessionEvent
	for i := 0; i < 10; i++ {
		ev := newEvent(sessionID, events.EventTypeTimerSync)
		sent = append(sent, ev)
		hub.Emit(ev)
	}

	for i, want := range sent {
		got := <-sub.Events()
		assert.Equal(t, want.EventID, got.EventID, "event %d out of order", i)
	}
}

// Events for one session never reach another session's subscribers, and the
// chat channel is isolated from the session channel.
func TestHubEmitIsolation(t *testing.T) {
	hub := NewHub()
	sessionA := uuid.New()
	sessionB := uuid.New()

	subA := hub.Join(sessionA, events.ChannelSession, "sub-a")
	subB := hub.Join(sessionB, events.ChannelSession, "sub-b")
	subChat := hub.Join(sessionA, events.ChannelChat, "sub-chat")

	hub.Emit(newEvent(sessionA, events.EventTypeStatusChanged))

	assert.Len(t, subA.Events(), 1)
	assert.Len(t, subB.Events(), 0)
	assert.Len(t, subChat.Events(), 0)

	hub.Emit(newEvent(sessionA, events.EventTypeChatMessage))
	assert.Len(t, subA.Events(), 1)
	assert.Len(t, subChat.Events(), 1)
}

// A subscriber that stops draining is detached instead of blocking emission
// for everyone else.
func TestHubEmitDetachesSlowSubscriber(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()

	slow := hub.Join(sessionID, events.ChannelSession, "slow")
	fast := hub.Join(sessionID, events.ChannelSession, "fast")

	for i := 0; i < subscriptionBuffer+1; i++ {
		hub.Emit(newEvent(sessionID, events.EventTypeTimerSync))
		// Keep the fast subscriber drained.
		<-fast.Events()
	}

	total, _ := hub.Stats()
	assert.Equal(t, 1, total, "slow subscriber should have been detached")

	// Drain what the slow subscriber did get; the channel must now be closed.
	for ev := range slow.Events() {
		require.NotNil(t, ev)
	}
}

func TestHubCloseViaSubscription(t *testing.T) {
	hub := NewHub()
	sessionID := uuid.New()

	sub := hub.Join(sessionID, events.ChannelSession, "sub-1")
	sub.Close()
	sub.Close()

	total, _ := hub.Stats()
	assert.Equal(t, 0, total)
}

func TestHubStats(t *testing.T) {
	hub := NewHub()
	for i := 0; i < 3; i++ {
		sessionID := uuid.New()
		for j := 0; j < 2; j++ {
			hub.Join(sessionID, events.ChannelSession, fmt.Sprintf("sub-%d-%d", i, j))
		}
	}

	total, channels := hub.Stats()
	assert.Equal(t, 6, total)
	assert.Equal(t, 3, channels)
}
