package syncer

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// chatLog merges confirmed messages (keyed by server-assigned id) with
// locally-staged optimistic entries. The command acknowledgement and the
// broadcast echo carry the same id, so whichever arrives first wins and the
// other is a no-op.
type chatLog struct {
	byID    map[uuid.UUID]models.ChatMessage
	pending map[uuid.UUID]models.ChatMessage
}

func newChatLog() *chatLog {
	return &chatLog{
		byID:    make(map[uuid.UUID]models.ChatMessage),
		pending: make(map[uuid.UUID]models.ChatMessage),
	}
}

// stage records an optimistic local entry and returns its local key.
func (l *chatLog) stage(odonym, text string, at time.Time) uuid.UUID {
	key := uuid.New()
	l.pending[key] = models.ChatMessage{
		Odonym: odonym,
		Text:   text,
		SentAt: at,
	}
	return key
}

// resolve replaces a staged entry with its acknowledged form.
func (l *chatLog) resolve(key uuid.UUID, msg models.ChatMessage) {
	delete(l.pending, key)
	l.byID[msg.ID] = msg
}

// drop discards a staged entry whose send failed.
func (l *chatLog) drop(key uuid.UUID) {
	delete(l.pending, key)
}

// insert adds a confirmed message. Duplicate ids collapse to one entry.
func (l *chatLog) insert(msg models.ChatMessage) {
	l.byID[msg.ID] = msg
}

// replace resets the confirmed set from an authoritative history fetch.
// Pending entries survive; their acknowledgement or echo is still in flight.
func (l *chatLog) replace(msgs []models.ChatMessage) {
	l.byID = make(map[uuid.UUID]models.ChatMessage, len(msgs))
	for _, m := range msgs {
		l.byID[m.ID] = m
	}
}

// snapshot returns confirmed messages in send order, with pending entries
// appended after them.
func (l *chatLog) snapshot() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(l.byID)+len(l.pending))
	for _, m := range l.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	pend := make([]models.ChatMessage, 0, len(l.pending))
	for _, m := range l.pending {
		pend = append(pend, m)
	}
	sort.Slice(pend, func(i, j int) bool { return pend[i].SentAt.Before(pend[j].SentAt) })
	return append(out, pend...)
}
