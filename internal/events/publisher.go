package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher routes a session event onto the push transport. Delivery is
// at-most-once and best-effort: a failed publish is the subscriber's loss,
// never the command's.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, eventType EventType, payload interface{}) error
}

// SubjectFor returns the NATS subject for a session's channel.
func SubjectFor(channel Channel, sessionID uuid.UUID) string {
	return fmt.Sprintf("focus.%s.%s", channel, sessionID)
}

// NATSPublisher publishes session events over core NATS. Core pub/sub is
// deliberate: the broadcast contract has no delivery guarantee and missed
// events are never replayed, so no stream persistence is involved.
type NATSPublisher struct {
	nc *nats.Conn

	// Per-session monotonic timestamp floor. Two events for one session
	// never carry out-of-order timestamps.
	mu       sync.Mutex
	lastTime map[uuid.UUID]time.Time

	now func() time.Time
}

// NewNATSPublisher wraps an established NATS connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{
		nc:       nc,
		lastTime: make(map[uuid.UUID]time.Time),
		now:      time.Now,
	}
}

// Publish marshals the payload into an envelope and fires it at the
// session's channel subject.
func (p *NATSPublisher) Publish(ctx context.Context, sessionID uuid.UUID, eventType EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	event := SessionEvent{
		EventID:   uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      eventType,
		Timestamp: p.stampTime(sessionID),
		Payload:   payloadBytes,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	subject := SubjectFor(ChannelOf(eventType), sessionID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("event_id", event.EventID).
		Str("session_id", event.SessionID).
		Str("event_type", string(eventType)).
		Str("subject", subject).
		Msg("event published")

	return nil
}

// stampTime returns a timestamp that never moves backwards for a session.
func (p *NATSPublisher) stampTime(sessionID uuid.UUID) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := p.now()
	if last, ok := p.lastTime[sessionID]; ok && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	p.lastTime[sessionID] = ts
	return ts
}

// Forget drops the timestamp floor for a terminal session.
func (p *NATSPublisher) Forget(sessionID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastTime, sessionID)
}

// Connect dials NATS with the reconnect handlers used across the service.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}
