package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/rs/zerolog/log"
)

// Hub is the per-session publish/subscribe fan-out. It owns an explicit
// subscription table (session id + channel → set of subscriber handles)
// rather than any ambient listener registry.
//
// Delivery is at-most-once and best-effort: nothing is queued for absent
// subscribers, and a subscriber that cannot keep up is detached. Within one
// subscriber, events arrive in emission order.
type Hub struct {
	mu   sync.RWMutex
	subs map[subKey]map[string]*Subscription
}

type subKey struct {
	sessionID uuid.UUID
	channel   events.Channel
}

// Subscription is one subscriber's handle on a session channel.
type Subscription struct {
	ID        string
	SessionID uuid.UUID
	Channel   events.Channel

	hub  *Hub
	ch   chan *events.SessionEvent
	once sync.Once
}

// Events is the subscriber's receive channel. It is closed when the
// subscription is detached.
func (s *Subscription) Events() <-chan *events.SessionEvent {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Leave(s.SessionID, s.Channel, s.ID)
}

const subscriptionBuffer = 64

func NewHub() *Hub {
	return &Hub{
		subs: make(map[subKey]map[string]*Subscription),
	}
}

// Join subscribes subscriberID to a session channel. Joining twice with the
// same id returns the existing subscription unchanged.
func (h *Hub) Join(sessionID uuid.UUID, channel events.Channel, subscriberID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := subKey{sessionID: sessionID, channel: channel}
	if existing, ok := h.subs[key][subscriberID]; ok {
		return existing
	}

	sub := &Subscription{
		ID:        subscriberID,
		SessionID: sessionID,
		Channel:   channel,
		hub:       h,
		ch:        make(chan *events.SessionEvent, subscriptionBuffer),
	}
	if h.subs[key] == nil {
		h.subs[key] = make(map[string]*Subscription)
	}
	h.subs[key][subscriberID] = sub

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("channel", string(channel)).
		Str("subscriber_id", subscriberID).
		Int("subscribers", len(h.subs[key])).
		Msg("subscriber joined")

	return sub
}

// Leave unsubscribes subscriberID from a session channel. Leaving twice, or
// leaving without having joined, is a no-op.
func (h *Hub) Leave(sessionID uuid.UUID, channel events.Channel, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(subKey{sessionID: sessionID, channel: channel}, subscriberID)
}

func (h *Hub) detachLocked(key subKey, subscriberID string) {
	sub, ok := h.subs[key][subscriberID]
	if !ok {
		return
	}
	delete(h.subs[key], subscriberID)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
	sub.once.Do(func() { close(sub.ch) })

	log.Debug().
		Str("session_id", key.sessionID.String()).
		Str("channel", string(key.channel)).
		Str("subscriber_id", subscriberID).
		Msg("subscriber left")
}

// Emit delivers an event to every current subscriber of its session channel.
// A subscriber whose buffer is full is detached rather than blocking the
// rest.
func (h *Hub) Emit(event *events.SessionEvent) {
	sessionID, err := uuid.Parse(event.SessionID)
	if err != nil {
		log.Error().Str("session_id", event.SessionID).Msg("emit: invalid session id")
		return
	}
	key := subKey{sessionID: sessionID, channel: events.ChannelOf(event.Type)}

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[key]))
	for _, sub := range h.subs[key] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var slow []string
	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub.ID)
		}
	}

	if len(slow) > 0 {
		h.mu.Lock()
		for _, id := range slow {
			log.Warn().
				Str("session_id", event.SessionID).
				Str("subscriber_id", id).
				Msg("subscriber buffer full, detaching")
			h.detachLocked(key, id)
		}
		h.mu.Unlock()
	}
}

// Stats returns subscriber counts per active session channel.
func (h *Hub) Stats() (totalSubscribers int, activeChannels int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.subs {
		totalSubscribers += len(subs)
	}
	return totalSubscribers, len(h.subs)
}
