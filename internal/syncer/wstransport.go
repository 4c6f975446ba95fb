package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/events"
)

// WSTransport opens push subscriptions against the realtime gateway.
type WSTransport struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	logger  zerolog.Logger
}

// NewWSTransport creates a transport for the gateway at baseURL
// (ws:// or wss:// scheme).
func NewWSTransport(baseURL, token string, logger zerolog.Logger) *WSTransport {
	return &WSTransport{
		baseURL: baseURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
		logger:  logger.With().Str("component", "ws_transport").Logger(),
	}
}

func (t *WSTransport) Subscribe(ctx context.Context, sessionID uuid.UUID, channel events.Channel) (EventStream, error) {
	endpoint := fmt.Sprintf("%s/ws/%s?session_id=%s&access_token=%s",
		t.baseURL, channel, sessionID, url.QueryEscape(t.token))

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, apperrors.Transport("subscribe_failed",
				fmt.Sprintf("gateway rejected subscription with status %d", resp.StatusCode)).Wrap(err)
		}
		return nil, apperrors.Transport("subscribe_failed", "failed to reach gateway").Wrap(err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	stream := &wsStream{
		conn:   conn,
		events: make(chan *events.SessionEvent, 32),
		logger: t.logger.With().Str("channel", string(channel)).Logger(),
	}
	go stream.readLoop()
	return stream, nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan *events.SessionEvent
	logger zerolog.Logger
}

func (s *wsStream) Events() <-chan *events.SessionEvent { return s.events }

func (s *wsStream) Close() error { return s.conn.Close() }

// readLoop decodes frames until the connection drops, then closes the
// events channel so the consumer sees the stream end.
func (s *wsStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("push stream closed unexpectedly")
			}
			return
		}
		var ev events.SessionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("undecodable push frame")
			continue
		}
		s.events <- &ev
	}
}
