package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/internal/idgen"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

var (
	ErrNotConnected      = errors.New("chat session is not connected")
	ErrHandshake         = errors.New("chat handshake failed")
	ErrRetriesExhausted  = errors.New("chat reconnect attempts exhausted")
	ErrSessionSuperseded = errors.New("chat connect superseded")
)

// ServerError is an ERROR frame received from the backend.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "chat server error: " + e.Message
}

// HistoryFetcher loads the authoritative chat history.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context) ([]domain.Message, error)
}

// HealthProber checks that the backend is reachable.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Identity is who the session connects as.
type Identity struct {
	Username string
	Token    string
}

// Config configures a Session.
type Config struct {
	URL          string       `mapstructure:"url"`
	Destinations Destinations `mapstructure:"destinations"`
	Backoff      Backoff      `mapstructure:"backoff"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	LivenessInterval time.Duration `mapstructure:"liveness_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	HistoryTimeout   time.Duration `mapstructure:"history_timeout"`

	// ReceiptEcho is the delay of the synthesized local RECEIPT. Zero or
	// negative disables the echo.
	ReceiptEcho      time.Duration `mapstructure:"receipt_echo"`
	DelayedAfter     time.Duration `mapstructure:"delayed_after"`
	RefreshAfter     time.Duration `mapstructure:"refresh_after"`
	RetransmitWindow time.Duration `mapstructure:"retransmit_window"`
	AnnounceJoin     bool          `mapstructure:"announce_join"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		Destinations:     DefaultDestinations(),
		Backoff:          DefaultBackoff(),
		HandshakeTimeout: 10 * time.Second,
		LivenessInterval: 30 * time.Second,
		ProbeTimeout:     5 * time.Second,
		HistoryTimeout:   10 * time.Second,
		ReceiptEcho:      100 * time.Millisecond,
		DelayedAfter:     5 * time.Second,
		RefreshAfter:     3 * time.Second,
		RetransmitWindow: 30 * time.Minute,
		AnnounceJoin:     true,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithHealthProber enables the periodic liveness check.
func WithHealthProber(p HealthProber) Option {
	return func(s *Session) { s.health = p }
}

// WithNow overrides the clock used for message timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is a reconnecting chat client holding the local message list.
type Session struct {
	cfg     Config
	dialer  Dialer
	history HistoryFetcher
	health  HealthProber
	now     func() time.Time
	logger  zerolog.Logger

	// dispatchMu orders mutations with their events; always taken before mu.
	dispatchMu sync.Mutex

	mu           sync.Mutex
	state        State
	identity     Identity
	conn         Conn
	gen          uint64
	attempts     int
	retry        *time.Timer
	stopLiveness chan struct{}
	messages     []domain.Message
	sent         map[string]struct{}

	handlersMu sync.RWMutex
	handlers   map[int]Handler
	order      []int
	nextID     int
}

// NewSession returns a disconnected session.
func NewSession(cfg Config, dialer Dialer, history HistoryFetcher, opts ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		dialer:   dialer,
		history:  history,
		now:      time.Now,
		logger:   log.L().With().Str("component", "chat").Logger(),
		sent:     make(map[string]struct{}),
		handlers: make(map[int]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers h and returns a function removing it.
func (s *Session) Subscribe(h Handler) func() {
	s.handlersMu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.order = append(s.order, id)
	s.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.handlersMu.Lock()
			defer s.handlersMu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the local message list.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Connect tears down any previous transport and connects as id. It blocks
// until the handshake completes or fails; on failure the retry policy runs in
// the background and the error is returned.
func (s *Session) Connect(ctx context.Context, id Identity) error {
	s.mu.Lock()
	s.identity = id
	s.attempts = 0
	s.mu.Unlock()

	return s.connect(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	stale := s.teardownLocked()
	gen := s.gen
	id := s.identity
	s.state = StateConnecting
	s.mu.Unlock()

	closeQuietly(stale)
	s.emitState(StateConnecting)

	l := s.logger.With().Str(log.FieldUsername, id.Username).Uint64("generation", gen).Logger()
	l.Debug().Str(log.FieldURL, s.cfg.URL).Msg("connecting")

	conn, err := s.dial(ctx, id)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		closeQuietly(conn)
		return ErrSessionSuperseded
	}
	if err != nil {
		s.state = StateDisconnected
		s.mu.Unlock()

		l.Warn().Err(err).Msg("chat connect failed")
		s.emitError(err)
		s.emitState(StateDisconnected)
		s.scheduleRetry(gen)
		return err
	}

	s.conn = conn
	s.state = StateConnected
	s.attempts = 0
	if s.health != nil && s.cfg.LivenessInterval > 0 {
		s.stopLiveness = make(chan struct{})
		go s.livenessLoop(gen, s.stopLiveness)
	}
	s.mu.Unlock()

	l.Info().Msg("chat connected")
	s.emitState(StateConnected)

	go s.readLoop(gen, conn)
	s.afterConnect(gen, conn, id)
	return nil
}

// dial opens the transport and runs the CONNECT handshake and subscriptions.
func (s *Session) dial(ctx context.Context, id Identity) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout())
	defer cancel()

	header := http.Header{}
	if id.Token != "" {
		header.Set("Authorization", "Bearer "+id.Token)
	}
	conn, err := s.dialer.Dial(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, err
	}

	if err := conn.WriteFrame(Frame{Command: CmdConnect, Login: id.Username, Token: id.Token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	type result struct {
		f   Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := conn.ReadFrame()
		ch <- result{f, err}
	}()

	var reply Frame
	select {
	case <-ctx.Done():
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrHandshake, r.err)
		}
		reply = r.f
	}

	switch reply.Command {
	case CmdConnected:
	case CmdError:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrHandshake, reply.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected %s frame", ErrHandshake, reply.Command)
	}

	for _, dest := range []string{s.cfg.Destinations.Broadcast, s.cfg.Destinations.PrivateFor(id.Username)} {
		if err := conn.WriteFrame(Frame{Command: CmdSubscribe, Destination: dest}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", dest, err)
		}
	}
	return conn, nil
}

// afterConnect retransmits recent pending messages and refreshes history.
func (s *Session) afterConnect(gen uint64, conn Conn, id Identity) {
	if s.cfg.AnnounceJoin && s.cfg.Destinations.Join != "" {
		join := domain.NewJoin(id.Username)
		join.Timestamp = s.now()
		if err := conn.WriteFrame(Frame{Command: CmdSend, Destination: s.cfg.Destinations.Join, Body: &join}); err != nil {
			s.logger.Warn().Err(err).Msg("join announcement failed")
		}
	}

	now := s.now()
	var resend []domain.Message

	s.dispatchMu.Lock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.dispatchMu.Unlock()
		return
	}
	for i := range s.messages {
		m := &s.messages[i]
		if !m.Pending() || m.ID() != "" {
			continue
		}
		if _, ours := s.sent[m.LocalID]; !ours {
			continue
		}
		if now.Sub(m.Timestamp) >= s.cfg.RetransmitWindow {
			continue
		}
		m.Timestamp = now
		resend = append(resend, *m)
	}
	s.mu.Unlock()
	s.dispatchMu.Unlock()

	for _, m := range resend {
		s.logger.Info().Str(log.FieldLocalID, m.LocalID).Msg("retransmitting pending message")
		if err := s.publish(gen, conn, m); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldLocalID, m.LocalID).Msg("retransmit failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout())
	defer cancel()
	s.refresh(ctx, gen)
}

// Disconnect closes the transport and cancels pending retries and the
// liveness check. The message list is kept.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.teardownLocked()
	changed := s.state != StateDisconnected
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		conn.WriteFrame(Frame{Command: CmdDisconnect})
		closeQuietly(conn)
	}
	if changed {
		s.logger.Info().Msg("chat disconnected")
		s.emitState(StateDisconnected)
	}
}

// teardownLocked invalidates the current generation and returns the
// transport for the caller to close outside the lock.
func (s *Session) teardownLocked() Conn {
	s.gen++
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.stopLiveness != nil {
		close(s.stopLiveness)
		s.stopLiveness = nil
	}
	conn := s.conn
	s.conn = nil
	return conn
}

func (s *Session) scheduleRetry(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	if !s.cfg.Backoff.Allows(attempt) {
		s.mu.Unlock()
		s.logger.Error().Int(log.FieldAttempt, attempt-1).Msg("giving up on chat reconnect")
		s.emitError(ErrRetriesExhausted)
		return
	}

	delay := s.cfg.Backoff.Delay(attempt)
	s.retry = time.AfterFunc(delay, func() {
		s.mu.Lock()
		valid := s.gen == gen
		s.mu.Unlock()
		if valid {
			s.connect(context.Background())
		}
	})
	s.mu.Unlock()

	s.logger.Info().Int(log.FieldAttempt, attempt).Dur("delay", delay).Msg("scheduling chat reconnect")
}

// lost handles a transport failure of generation gen.
func (s *Session) lost(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	conn := s.teardownLocked()
	next := s.gen
	s.state = StateDisconnected
	s.mu.Unlock()

	closeQuietly(conn)
	s.logger.Warn().Err(cause).Msg("chat transport lost")
	s.emitError(cause)
	s.emitState(StateDisconnected)
	s.scheduleRetry(next)
}

func (s *Session) readLoop(gen uint64, conn Conn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			s.lost(gen, err)
			return
		}

		switch f.Command {
		case CmdMessage:
			if f.Body == nil {
				continue
			}
			s.route(*f.Body)
		case CmdError:
			s.logger.Warn().Str("error", f.Error).Msg("chat server error")
			s.emitError(&ServerError{Message: f.Error})
		default:
			s.logger.Debug().Str("command", string(f.Command)).Msg("ignoring frame")
		}
	}
}

// Send publishes msg and records it locally as pending. It returns the
// message as recorded, with its local id and timestamp filled in.
func (s *Session) Send(ctx context.Context, msg domain.Message) (domain.Message, error) {
	s.dispatchMu.Lock()
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		s.dispatchMu.Unlock()
		l := log.Ctx(ctx)
		l.Warn().Msg("chat send while disconnected")
		return msg, ErrNotConnected
	}
	conn := s.conn
	gen := s.gen

	now := s.now()
	if msg.LocalID == "" {
		msg.LocalID = idgen.LocalID(now)
	}
	if idgen.IsNumeric(msg.ID()) {
		msg.Confirmation.ServerID = ""
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Sender == "" {
		msg.Sender = s.identity.Username
	}
	if msg.Type == "" {
		msg.Type = domain.MessageChat
	}
	msg.Confirmation.Pending = true
	msg.Confirmation.SendStatus = domain.SendStatusNone
	s.sent[msg.LocalID] = struct{}{}

	if i := indexByLocalID(s.messages, msg.LocalID); i >= 0 {
		s.messages[i] = msg
	} else {
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessage, Message: msg})
	s.dispatchMu.Unlock()

	if err := s.publish(gen, conn, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldLocalID, msg.LocalID).Msg("chat publish failed")
		return msg, err
	}
	return msg, nil
}

// publish writes msg on the transport of generation gen and arms the
// receipt echo and the delayed check.
func (s *Session) publish(gen uint64, conn Conn, msg domain.Message) error {
	body := msg
	if err := conn.WriteFrame(Frame{Command: CmdSend, Destination: s.cfg.Destinations.Publish, Body: &body}); err != nil {
		return fmt.Errorf("publish %s: %w", msg.LocalID, err)
	}
	s.logger.Debug().Str(log.FieldLocalID, msg.LocalID).Str(log.FieldDestination, s.cfg.Destinations.Publish).Msg("published")

	localID := msg.LocalID
	if s.cfg.ReceiptEcho > 0 {
		receipt := domain.NewReceipt(msg.Sender, localID, "")
		time.AfterFunc(s.cfg.ReceiptEcho, func() { s.route(receipt) })
	}
	if s.cfg.DelayedAfter > 0 {
		time.AfterFunc(s.cfg.DelayedAfter, func() { s.markDelayed(gen, localID) })
	}
	return nil
}

func (s *Session) route(in domain.Message) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	var (
		outcome Outcome
		idx     int
		m       domain.Message
	)
	s.messages, outcome, idx = Route(s.messages, in)
	if idx >= 0 {
		m = s.messages[idx]
	}
	s.mu.Unlock()

	switch outcome {
	case OutcomeAppended:
		s.emit(Event{Kind: EventMessage, Message: m})
	case OutcomeConfirmed:
		s.logger.Debug().Str(log.FieldLocalID, m.LocalID).Str(log.FieldMessageID, m.ID()).Msg("message confirmed")
		s.emit(Event{Kind: EventConfirmed, Message: m})
	}
}

// markDelayed flags a still-pending message. The follow-up history refresh
// only runs while the session that published it is still current.
func (s *Session) markDelayed(gen uint64, localID string) {
	s.dispatchMu.Lock()
	s.mu.Lock()
	i := indexByLocalID(s.messages, localID)
	if i < 0 || !s.messages[i].Pending() {
		s.mu.Unlock()
		s.dispatchMu.Unlock()
		return
	}
	s.messages[i].Confirmation.SendStatus = domain.SendStatusDelayed
	m := s.messages[i]
	current := s.gen == gen
	s.mu.Unlock()

	s.logger.Warn().Str(log.FieldLocalID, localID).Msg("message delivery delayed")
	s.emit(Event{Kind: EventDelayed, Message: m})
	s.dispatchMu.Unlock()

	if current && s.cfg.RefreshAfter > 0 {
		time.AfterFunc(s.cfg.RefreshAfter, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout())
			defer cancel()
			s.refresh(ctx, gen)
		})
	}
}

// RefreshHistory fetches server history and reconciles it into the local
// list. On failure the list is left unchanged.
func (s *Session) RefreshHistory(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, gen)
}

func (s *Session) refresh(ctx context.Context, gen uint64) error {
	if s.history == nil {
		return nil
	}
	s.mu.Lock()
	valid := s.gen == gen
	s.mu.Unlock()
	if !valid {
		return ErrSessionSuperseded
	}

	hist, err := s.history.ChatHistory(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat history fetch failed")
		s.emitError(fmt.Errorf("fetch chat history: %w", err))
		return err
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionSuperseded
	}
	s.messages = Reconcile(s.messages, hist)
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	s.logger.Debug().Int("count", len(snapshot)).Msg("chat history reconciled")
	s.emit(Event{Kind: EventHistory, Messages: snapshot})
	return nil
}

func (s *Session) livenessLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout())
			err := s.health.Health(ctx)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("liveness probe failed")
				s.lost(gen, fmt.Errorf("liveness probe: %w", err))
				return
			}
		}
	}
}

func (s *Session) emitState(st State) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.emit(Event{Kind: EventState, State: st})
}

func (s *Session) emitError(err error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.emit(Event{Kind: EventError, Err: err})
}

// emit fans ev out to handlers. Callers hold dispatchMu.
func (s *Session) emit(ev Event) {
	s.handlersMu.RLock()
	hs := make([]Handler, 0, len(s.order))
	for _, id := range s.order {
		hs = append(hs, s.handlers[id])
	}
	s.handlersMu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

func (s *Session) handshakeTimeout() time.Duration {
	if s.cfg.HandshakeTimeout > 0 {
		return s.cfg.HandshakeTimeout
	}
	return 10 * time.Second
}

func (s *Session) historyTimeout() time.Duration {
	if s.cfg.HistoryTimeout > 0 {
		return s.cfg.HistoryTimeout
	}
	return 10 * time.Second
}

func (s *Session) probeTimeout() time.Duration {
	if s.cfg.ProbeTimeout > 0 {
		return s.cfg.ProbeTimeout
	}
	return 5 * time.Second
}

func closeQuietly(c Conn) {
	if c != nil {
		c.Close()
	}
}
