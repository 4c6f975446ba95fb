package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/models"
)

// Syncer keeps a local session view converged with the server. Push events
// are the fast path; a fallback poll against the query API is the
// authoritative path. Either alone is sufficient for convergence because
// push delivery is best effort.
type Syncer struct {
	fetcher   Fetcher
	transport Transport
	handler   Handler
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu           sync.Mutex
	cfg          Config
	sessionID    uuid.UUID
	state        SessionState
	chat         *chatLog
	connectivity Connectivity
	odonym       string
}

// NewSyncer creates a syncer. The handler receives every reconciled update.
func NewSyncer(fetcher Fetcher, transport Transport, handler Handler, clock clockwork.Clock, cfg Config, logger zerolog.Logger) *Syncer {
	if cfg.ActivePollInterval <= 0 {
		cfg.ActivePollInterval = DefaultConfig().ActivePollInterval
	}
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = DefaultConfig().IdlePollInterval
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultConfig().ReconnectBackoff
	}
	if cfg.PushLivenessWindow <= 0 {
		cfg.PushLivenessWindow = DefaultConfig().PushLivenessWindow
	}
	return &Syncer{
		fetcher:      fetcher,
		transport:    transport,
		handler:      handler,
		clock:        clock,
		logger:       logger.With().Str("component", "syncer").Logger(),
		cfg:          cfg,
		chat:         newChatLog(),
		connectivity: ConnectivityConnecting,
	}
}

// SetPollIntervals adjusts the reconciliation cadence at runtime.
func (s *Syncer) SetPollIntervals(active, idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active > 0 {
		s.cfg.ActivePollInterval = active
	}
	if idle > 0 {
		s.cfg.IdlePollInterval = idle
	}
}

// SetOdonym sets the display name used for optimistic chat entries.
func (s *Syncer) SetOdonym(odonym string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.odonym = odonym
}

// streamDown signals that a push subscription dropped. The generation ties
// the notice to the subscribe attempt that opened the stream, so notices from
// an already-replaced set cannot tear down their successors.
type streamDown struct {
	gen     int
	channel events.Channel
}

// Watch opens a session view and blocks until ctx is cancelled, reconciling
// the local state through push events, fallback polls and a local one-second
// countdown.
func (s *Syncer) Watch(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	s.sessionID = sessionID
	s.mu.Unlock()
	s.setConnectivity(ConnectivityConnecting)

	if err := s.pollOnce(ctx); err != nil {
		return err
	}
	if err := s.refreshChat(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial chat history fetch failed")
	}

	eventCh := make(chan *events.SessionEvent, 32)
	downCh := make(chan streamDown, 4)
	gen := 1
	streams := s.subscribeAll(ctx, sessionID, gen, eventCh, downCh)
	defer func() { closeStreams(streams) }()
	if streams != nil {
		s.setConnectivity(ConnectivityConnected)
	} else {
		s.setConnectivity(ConnectivityDisconnected)
	}

	pollTimer := s.clock.NewTimer(s.activePollInterval())
	defer pollTimer.Stop()
	tick := s.clock.NewTimer(time.Second)
	defer tick.Stop()
	lastEvent := s.clock.Now()
	liveness := s.clock.NewTimer(s.pushLivenessWindow())
	defer liveness.Stop()
	var reconnectTimer clockwork.Timer
	reconnectCh := func() <-chan time.Time {
		if reconnectTimer == nil {
			return nil
		}
		return reconnectTimer.Chan()
	}
	if streams == nil {
		reconnectTimer = s.clock.NewTimer(s.cfg.ReconnectBackoff)
	}
	defer func() {
		if reconnectTimer != nil {
			reconnectTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-eventCh:
			lastEvent = s.clock.Now()
			s.setConnectivity(ConnectivityConnected)
			s.handleEvent(ctx, ev)

		case down := <-downCh:
			if down.gen != gen {
				continue
			}
			s.logger.Debug().Str("channel", string(down.channel)).Msg("push stream dropped")
			s.setConnectivity(ConnectivityDisconnected)
			closeStreams(streams)
			streams = nil
			// The sibling stream of this generation was just closed too;
			// bumping the generation retires its pending drop notice.
			gen++
			if reconnectTimer == nil {
				reconnectTimer = s.clock.NewTimer(s.cfg.ReconnectBackoff)
			} else {
				reconnectTimer.Reset(s.cfg.ReconnectBackoff)
			}

		case <-reconnectCh():
			streams = s.subscribeAll(ctx, sessionID, gen, eventCh, downCh)
			if streams != nil {
				s.setConnectivity(ConnectivityConnecting)
				lastEvent = s.clock.Now()
				// One forced refetch covers everything missed offline.
				if err := s.pollOnce(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("post-reconnect refetch failed")
				}
				if err := s.refreshChat(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("post-reconnect chat refetch failed")
				}
			} else {
				reconnectTimer.Reset(s.cfg.ReconnectBackoff)
			}

		case <-liveness.Chan():
			// An open but silent push channel is as stale as a dropped one.
			// Ticking phases broadcast timer syncs, so silence across a full
			// window means pushes are not arriving.
			if streams != nil &&
				s.clock.Now().Sub(lastEvent) >= s.pushLivenessWindow() &&
				expectsPush(s.State().Status) {
				s.setConnectivity(ConnectivityDisconnected)
			}
			liveness.Reset(s.pushLivenessWindow())

		case <-pollTimer.Chan():
			if err := s.pollOnce(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("fallback poll failed")
			}
			// Reset after the pass completes so slow polls never stack.
			pollTimer.Reset(s.activePollInterval())

		case <-tick.Chan():
			s.tickOnce()
			tick.Reset(time.Second)
		}
	}
}

var watchChannels = []events.Channel{events.ChannelSession, events.ChannelChat}

// subscribeAll opens every push channel or none: a partial result is closed
// before returning so no stream leaks without a forwarder accounted for.
// Forwarders start only once the whole set is up.
func (s *Syncer) subscribeAll(ctx context.Context, sessionID uuid.UUID, gen int, eventCh chan<- *events.SessionEvent, downCh chan<- streamDown) []EventStream {
	streams := make([]EventStream, 0, len(watchChannels))
	for _, ch := range watchChannels {
		stream, err := s.transport.Subscribe(ctx, sessionID, ch)
		if err != nil {
			s.logger.Warn().Err(err).Str("channel", string(ch)).Msg("push subscribe failed")
			closeStreams(streams)
			return nil
		}
		streams = append(streams, stream)
	}
	for i, ch := range watchChannels {
		go forwardStream(gen, ch, streams[i], eventCh, downCh)
	}
	return streams
}

// forwardStream copies one subscription into the loop's merged channel and
// reports the drop when the stream closes.
func forwardStream(gen int, channel events.Channel, stream EventStream, eventCh chan<- *events.SessionEvent, downCh chan<- streamDown) {
	for ev := range stream.Events() {
		eventCh <- ev
	}
	downCh <- streamDown{gen: gen, channel: channel}
}

// expectsPush reports whether the server broadcasts periodic timer syncs for
// the status, making push silence meaningful.
func expectsPush(status models.SessionStatus) bool {
	switch status {
	case models.SessionStatusWarmup, models.SessionStatusFocusing,
		models.SessionStatusBreak, models.SessionStatusCooldown:
		return true
	}
	return false
}

func closeStreams(streams []EventStream) {
	for _, st := range streams {
		_ = st.Close()
	}
}

// handleEvent applies one push event. Timer syncs update the countdown
// directly; chat messages merge by id; everything else that changes session
// shape triggers an authoritative refetch.
func (s *Syncer) handleEvent(ctx context.Context, ev *events.SessionEvent) {
	payload, err := events.ParsePayload(ev)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("undecodable event payload")
		return
	}
	switch p := payload.(type) {
	case events.TimerSyncPayload:
		s.applyTimerSync(p)
	case events.ChatMessagePayload:
		s.applyChatEcho(p)
	case events.ChatTypingPayload:
		// Transient; nothing to reconcile.
	default:
		if err := s.pollOnce(ctx); err != nil {
			s.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("event-triggered refetch failed")
		}
		if ev.Type == events.EventTypeChatToggled {
			if err := s.refreshChat(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("chat refetch after toggle failed")
			}
		}
	}
}

// applyTimerSync adopts a server timer broadcast, compensating for delivery
// delay so the displayed countdown never runs ahead of the server.
func (s *Syncer) applyTimerSync(p events.TimerSyncPayload) {
	delay := s.clock.Now().Sub(p.ServerTimestamp)
	remaining := p.Timer.RemainingSeconds - int(delay/time.Second)
	if remaining < 0 {
		remaining = 0
	}

	s.mu.Lock()
	s.state.Status = p.Status
	s.state.RemainingSeconds = remaining
	if s.state.Session != nil {
		s.state.Session.Status = p.Status
	}
	state := s.state
	s.mu.Unlock()
	s.handler.OnSessionUpdate(state)
}

func (s *Syncer) applyChatEcho(p events.ChatMessagePayload) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		s.logger.Warn().Str("id", p.ID).Msg("chat echo with malformed id")
		return
	}
	s.mu.Lock()
	s.chat.insert(models.ChatMessage{
		ID:        id,
		SessionID: s.sessionID,
		Odonym:    p.Odonym,
		Text:      p.Text,
		SentAt:    p.SentAt,
	})
	snapshot := s.chat.snapshot()
	s.mu.Unlock()
	s.handler.OnChatUpdate(snapshot)
}

// pollOnce fetches the authoritative session state and replaces the local
// view with it.
func (s *Syncer) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	sess, timer, err := s.fetcher.FetchSession(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = SessionState{
		Session:          sess,
		Status:           sess.Status,
		RemainingSeconds: timer.RemainingSeconds,
		Repetition:       sess.CurrentRepetition,
	}
	state := s.state
	s.mu.Unlock()
	s.handler.OnSessionUpdate(state)
	return nil
}

func (s *Syncer) refreshChat(ctx context.Context) error {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()

	msgs, err := s.fetcher.FetchMessages(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.chat.replace(msgs)
	snapshot := s.chat.snapshot()
	s.mu.Unlock()
	s.handler.OnChatUpdate(snapshot)
	return nil
}

// tickOnce advances the local one-second countdown. Only an in-progress
// focus block counts down locally; other phases wait for server syncs.
func (s *Syncer) tickOnce() {
	s.mu.Lock()
	if s.state.Status != models.SessionStatusFocusing || s.state.RemainingSeconds <= 0 {
		s.mu.Unlock()
		return
	}
	s.state.RemainingSeconds--
	state := s.state
	s.mu.Unlock()
	s.handler.OnSessionUpdate(state)
}

// SendMessage stages an optimistic chat entry and submits the message. The
// staged entry is replaced by the acknowledged copy, or discarded with the
// error surfaced when the send fails.
func (s *Syncer) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	id := s.sessionID
	key := s.chat.stage(s.odonym, text, s.clock.Now())
	snapshot := s.chat.snapshot()
	s.mu.Unlock()
	s.handler.OnChatUpdate(snapshot)

	msg, err := s.fetcher.SendMessage(ctx, id, text)
	s.mu.Lock()
	if err != nil {
		s.chat.drop(key)
	} else {
		s.chat.resolve(key, *msg)
	}
	snapshot = s.chat.snapshot()
	s.mu.Unlock()
	s.handler.OnChatUpdate(snapshot)
	return err
}

// SendTyping forwards a typing indicator. Failures are not retried.
func (s *Syncer) SendTyping(ctx context.Context, typing bool) {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()
	if err := s.fetcher.SendTyping(ctx, id, typing); err != nil {
		s.logger.Debug().Err(err).Msg("typing indicator dropped")
	}
}

// Messages returns the current merged chat view.
func (s *Syncer) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.snapshot()
}

// State returns the current local session view.
func (s *Syncer) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connectivity returns the current push-channel health.
func (s *Syncer) Connectivity() Connectivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectivity
}

func (s *Syncer) setConnectivity(c Connectivity) {
	s.mu.Lock()
	if s.connectivity == c {
		s.mu.Unlock()
		return
	}
	s.connectivity = c
	s.mu.Unlock()
	s.handler.OnConnectivityChange(c)
}

func (s *Syncer) activePollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ActivePollInterval
}

func (s *Syncer) pushLivenessWindow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PushLivenessWindow
}

func (s *Syncer) idlePollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.IdlePollInterval
}

// RunIdleProbe periodically checks for an active session while no session
// view is open, and hands any hit to onActive.
func (s *Syncer) RunIdleProbe(ctx context.Context, onActive func(*models.Session, models.TimerSnapshot)) error {
	timer := s.clock.NewTimer(s.idlePollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			sess, snap, err := s.fetcher.FetchActiveSession(ctx)
			if err != nil {
				s.logger.Debug().Err(err).Msg("active-session probe failed")
			} else if sess != nil {
				onActive(sess, snap)
			}
			timer.Reset(s.idlePollInterval())
		}
	}
}
