package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// busConn is the slice of the NATS connection the consumer uses.
type busConn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Consumer bridges the NATS event bus to the hub. Core NATS subscriptions
// carry the same contract the hub exposes downstream: at-most-once, no
// replay of missed events.
type Consumer struct {
	hub  *Hub
	nc   busConn
	subs []*nats.Subscription
}

func NewConsumer(hub *Hub, nc *nats.Conn) *Consumer {
	return &Consumer{hub: hub, nc: nc}
}

// Start subscribes to both channel subject trees and returns. Incoming
// events fan into the hub from the connection's delivery goroutine until
// Stop is called.
func (c *Consumer) Start() error {
	for _, subject := range []string{"focus.session.>", "focus.chat.>"} {
		sub, err := c.nc.Subscribe(subject, c.handleMessage)
		if err != nil {
			c.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.subs = append(c.subs, sub)
		log.Info().Str("subject", subject).Msg("gateway consumer subscribed")
	}
	return nil
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	var event events.SessionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().
			Err(err).
			Str("subject", msg.Subject).
			Msg("failed to unmarshal event envelope")
		return
	}

	log.Debug().
		Str("event_id", event.EventID).
		Str("session_id", event.SessionID).
		Str("event_type", string(event.Type)).
		Msg("routing event to hub")

	c.hub.Emit(&event)
}

// Stop drains the NATS subscriptions.
func (c *Consumer) Stop() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe")
		}
	}
	c.subs = nil
}
