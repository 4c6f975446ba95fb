package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimmyxpow/focus-sub001/internal/models"
)

func TestChannelOf(t *testing.T) {
	assert.Equal(t, ChannelChat, ChannelOf(EventTypeChatMessage))
	assert.Equal(t, ChannelChat, ChannelOf(EventTypeChatTyping))
	assert.Equal(t, ChannelSession, ChannelOf(EventTypeStatusChanged))
	assert.Equal(t, ChannelSession, ChannelOf(EventTypeTimerSync))
	assert.Equal(t, ChannelSession, ChannelOf(EventTypeChatToggled))
}

func TestSubjectFor(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "focus.session.6ba7b810-9dad-11d1-80b4-00c04fd430c8", SubjectFor(ChannelSession, id))
	assert.Equal(t, "focus.chat.6ba7b810-9dad-11d1-80b4-00c04fd430c8", SubjectFor(ChannelChat, id))
}

func TestParsePayload(t *testing.T) {
	payload, err := json.Marshal(TimerSyncPayload{
		Status: models.SessionStatusFocusing,
		Timer:  models.TimerSnapshot{RemainingSeconds: 90},
	})
	require.NoError(t, err)

	decoded, err := ParsePayload(&SessionEvent{
		Type:    EventTypeTimerSync,
		Payload: payload,
	})
	require.NoError(t, err)

	sync, ok := decoded.(TimerSyncPayload)
	require.True(t, ok)
	assert.Equal(t, models.SessionStatusFocusing, sync.Status)
	assert.Equal(t, 90, sync.Timer.RemainingSeconds)
}

func TestParsePayloadMalformed(t *testing.T) {
	_, err := ParsePayload(&SessionEvent{
		Type:    EventTypeStatusChanged,
		Payload: json.RawMessage(`{`),
	})
	assert.Error(t, err)
}

// Two events for one session never carry out-of-order timestamps, even when
// the wall clock does not advance between them.
func TestStampTimeMonotonicPerSession(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &NATSPublisher{
		lastTime: make(map[uuid.UUID]time.Time),
		now:      func() time.Time { return frozen },
	}
	sessionID := uuid.New()

	first := p.stampTime(sessionID)
	second := p.stampTime(sessionID)
	third := p.stampTime(sessionID)

	assert.True(t, second.After(first))
	assert.True(t, third.After(second))

	// Other sessions are stamped independently.
	other := p.stampTime(uuid.New())
	assert.Equal(t, frozen, other)

	p.Forget(sessionID)
	assert.Equal(t, frozen, p.stampTime(sessionID))
}
