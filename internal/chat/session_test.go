package chat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeConn struct {
	toClient   chan Frame
	fromClient chan Frame
	done       chan struct{}
	once       sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toClient:   make(chan Frame, 64),
		fromClient: make(chan Frame, 64),
		done:       make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.toClient:
		return f, nil
	case <-c.done:
		return Frame{}, ErrConnClosed
	}
}

func (c *fakeConn) WriteFrame(f Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.fromClient <- f:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// fakeBroker answers the handshake and records every frame it receives.
type fakeBroker struct {
	mu        sync.Mutex
	dials     int
	failDials int
	reject    string
	echo      bool
	nextID    int
	conns     []*fakeConn
	frames    []Frame
}

func (b *fakeBroker) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dials <= b.failDials {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	b.conns = append(b.conns, c)
	go b.serve(c)
	return c, nil
}

func (b *fakeBroker) serve(c *fakeConn) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.fromClient:
			b.mu.Lock()
			b.frames = append(b.frames, f)
			reject, echo := b.reject, b.echo
			var reply *Frame
			switch f.Command {
			case CmdConnect:
				if reject != "" {
					reply = &Frame{Command: CmdError, Error: reject}
				} else {
					reply = &Frame{Command: CmdConnected}
				}
			case CmdSend:
				if echo && f.Destination == DefaultDestinations().Publish {
					b.nextID++
					m := *f.Body
					m.Confirmation = domain.Confirmation{ServerID: strconv.Itoa(b.nextID)}
					reply = &Frame{Command: CmdMessage, Destination: "/topic/public", Body: &m}
				}
			}
			b.mu.Unlock()
			if reply != nil {
				c.toClient <- *reply
			}
		}
	}
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[i]
}

func (b *fakeBroker) received(cmd Command, dest string) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Frame
	for _, f := range b.frames {
		if f.Command == cmd && (dest == "" || f.Destination == dest) {
			out = append(out, f)
		}
	}
	return out
}

type fakeHistory struct {
	mu    sync.Mutex
	calls int
	msgs  []domain.Message
	err   error
}

func (h *fakeHistory) ChatHistory(ctx context.Context) ([]domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	out := make([]domain.Message, len(h.msgs))
	copy(out, h.msgs)
	return out, nil
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type failingProber struct{}

func (failingProber) Health(ctx context.Context) error { return errors.New("backend unreachable") }

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, ev := range r.events {
		if ev.Kind == EventError {
			out = append(out, ev.Err)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://chat.test/ws"
	cfg.Backoff = Backoff{Base: 10 * time.Millisecond, Max: 40 * time.Millisecond, MaxAttempts: 3}
	cfg.HandshakeTimeout = time.Second
	cfg.ReceiptEcho = 0
	cfg.DelayedAfter = 0
	cfg.RefreshAfter = 0
	return cfg
}

func newTestSession(t *testing.T, cfg Config, b *fakeBroker, h *fakeHistory, opts ...Option) (*Session, *recorder) {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	s := NewSession(cfg, b, h, opts...)
	rec := &recorder{}
	s.Subscribe(rec.handle)
	t.Cleanup(s.Disconnect)
	return s, rec
}

var alice = Identity{Username: "alice", Token: "tok"}

func TestSendWhileDisconnectedIsRejected(t *testing.T) {
	b := &fakeBroker{}
	s, rec := newTestSession(t, testConfig(), b, &fakeHistory{})

	_, err := s.Send(context.Background(), domain.NewChat("alice", "hello"))

	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, b.dialCount())
	assert.Empty(t, b.received(CmdSend, ""))
	assert.Empty(t, s.Messages())
	assert.Empty(t, rec.kinds())
}

func TestConnectHandshakeAndSubscriptions(t *testing.T) {
	b := &fakeBroker{}
	h := &fakeHistory{msgs: []domain.Message{chatMsg("1", "", "bob", "earlier", t0)}}
	s, rec := newTestSession(t, testConfig(), b, h)

	require.NoError(t, s.Connect(context.Background(), alice))
	assert.Equal(t, StateConnected, s.State())

	connects := b.received(CmdConnect, "")
	require.Len(t, connects, 1)
	assert.Equal(t, "alice", connects[0].Login)
	assert.Equal(t, "tok", connects[0].Token)

	require.Eventually(t, func() bool { return len(b.received(CmdSubscribe, "")) == 2 }, waitFor, tick)
	assert.Len(t, b.received(CmdSubscribe, "/topic/public"), 1)
	assert.Len(t, b.received(CmdSubscribe, "/user/alice/queue/private"), 1)

	require.Eventually(t, func() bool { return len(b.received(CmdSend, "/app/chat.addUser")) == 1 }, waitFor, tick)

	assert.Equal(t, 1, h.callCount())
	require.Len(t, s.Messages(), 1)
	assert.Equal(t, "earlier", s.Messages()[0].Content)
	assert.Equal(t, []EventKind{EventState, EventState, EventHistory}, rec.kinds())
}

func TestConnectHandshakeRejected(t *testing.T) {
	b := &fakeBroker{reject: "bad token"}
	cfg := testConfig()
	cfg.Backoff.MaxAttempts = 0
	s, rec := newTestSession(t, cfg, b, &fakeHistory{})

	err := s.Connect(context.Background(), alice)

	require.ErrorIs(t, err, ErrHandshake)
	assert.Contains(t, err.Error(), "bad token")
	assert.Equal(t, StateDisconnected, s.State())
	require.Eventually(t, func() bool {
		for _, e := range rec.errs() {
			if errors.Is(e, ErrRetriesExhausted) {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestSendAssignsLocalIDAndLocalReceiptConfirms(t *testing.T) {
	cfg := testConfig()
	cfg.ReceiptEcho = 10 * time.Millisecond
	b := &fakeBroker{}
	s, rec := newTestSession(t, cfg, b, &fakeHistory{})
	require.NoError(t, s.Connect(context.Background(), alice))

	msg := domain.NewChat("", "hello")
	msg.Confirmation.ServerID = "12345"
	sent, err := s.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.NotEmpty(t, sent.LocalID)
	assert.Empty(t, sent.ID())
	assert.Equal(t, "alice", sent.Sender)
	assert.False(t, sent.Timestamp.IsZero())
	assert.True(t, sent.Pending())

	require.Eventually(t, func() bool { return len(b.received(CmdSend, "/app/chat.sendMessage")) == 1 }, waitFor, tick)
	published := b.received(CmdSend, "/app/chat.sendMessage")
	assert.Equal(t, sent.LocalID, published[0].Body.LocalID)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && !msgs[0].Pending()
	}, waitFor, tick)
	assert.Equal(t, domain.SendStatusSent, s.Messages()[0].Confirmation.SendStatus)

	kinds := rec.kinds()
	assert.Equal(t, []EventKind{EventMessage, EventConfirmed}, kinds[len(kinds)-2:])
}

func TestServerEchoAdoptsServerID(t *testing.T) {
	b := &fakeBroker{echo: true}
	s, _ := newTestSession(t, testConfig(), b, &fakeHistory{})
	require.NoError(t, s.Connect(context.Background(), alice))

	sent, err := s.Send(context.Background(), domain.NewChat("alice", "hi"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID() == "1"
	}, waitFor, tick)
	m := s.Messages()[0]
	assert.Equal(t, sent.LocalID, m.LocalID)
	assert.False(t, m.Pending())
}

func TestIncomingMessagesAreDeduplicated(t *testing.T) {
	b := &fakeBroker{}
	s, _ := newTestSession(t, testConfig(), b, &fakeHistory{})
	require.NoError(t, s.Connect(context.Background(), alice))

	c := b.conn(0)
	in := chatMsg("9", "", "bob", "yo", t0)
	c.toClient <- Frame{Command: CmdMessage, Body: &in}
	c.toClient <- Frame{Command: CmdMessage, Body: &in}
	join := domain.NewJoin("carol")
	c.toClient <- Frame{Command: CmdMessage, Body: &join}

	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.Messages(), 2)
}

func TestDelayedMarkSchedulesHistoryRefresh(t *testing.T) {
	cfg := testConfig()
	cfg.DelayedAfter = 20 * time.Millisecond
	cfg.RefreshAfter = 20 * time.Millisecond
	b := &fakeBroker{}
	h := &fakeHistory{}
	s, rec := newTestSession(t, cfg, b, h)
	require.NoError(t, s.Connect(context.Background(), alice))
	require.Equal(t, 1, h.callCount())

	sent, err := s.Send(context.Background(), domain.NewChat("alice", "anyone?"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Confirmation.SendStatus == domain.SendStatusDelayed
	}, waitFor, tick)
	assert.Contains(t, rec.kinds(), EventDelayed)

	require.Eventually(t, func() bool { return h.callCount() == 2 }, waitFor, tick)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.LocalID, msgs[0].LocalID)
	assert.True(t, msgs[0].Pending())
	assert.Len(t, b.received(CmdSend, "/app/chat.sendMessage"), 1)
}

func TestDelayedMarkAfterDisconnectSkipsRefresh(t *testing.T) {
	cfg := testConfig()
	cfg.DelayedAfter = 40 * time.Millisecond
	cfg.RefreshAfter = 10 * time.Millisecond
	b := &fakeBroker{}
	h := &fakeHistory{}
	s, _ := newTestSession(t, cfg, b, h)
	require.NoError(t, s.Connect(context.Background(), alice))
	require.Eventually(t, func() bool { return h.callCount() == 1 }, waitFor, tick)

	_, err := s.Send(context.Background(), domain.NewChat("alice", "still there?"))
	require.NoError(t, err)
	s.Disconnect()

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Confirmation.SendStatus == domain.SendStatusDelayed
	}, waitFor, tick)

	time.Sleep(cfg.RefreshAfter + 50*time.Millisecond)
	assert.Equal(t, 1, h.callCount())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestReconnectRetransmitsPending(t *testing.T) {
	b := &fakeBroker{}
	s, rec := newTestSession(t, testConfig(), b, &fakeHistory{})
	require.NoError(t, s.Connect(context.Background(), alice))

	sent, err := s.Send(context.Background(), domain.NewChat("alice", "are you there"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.received(CmdSend, "/app/chat.sendMessage")) == 1 }, waitFor, tick)

	b.conn(0).Close()

	require.Eventually(t, func() bool {
		return b.dialCount() == 2 && s.State() == StateConnected
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return len(b.received(CmdSend, "/app/chat.sendMessage")) == 2
	}, waitFor, tick)

	for _, f := range b.received(CmdSend, "/app/chat.sendMessage") {
		assert.Equal(t, sent.LocalID, f.Body.LocalID)
	}
	assert.Len(t, s.Messages(), 1)
	assert.NotEmpty(t, rec.errs())
}

func TestRetransmitSkipsStaleMessages(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := &fakeBroker{}
	s, _ := newTestSession(t, testConfig(), b, &fakeHistory{}, WithNow(clock))
	require.NoError(t, s.Connect(context.Background(), alice))

	old := domain.NewChat("alice", "ancient")
	old.Timestamp = now.Add(-time.Hour)
	_, err := s.Send(context.Background(), old)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.received(CmdSend, "/app/chat.sendMessage")) == 1 }, waitFor, tick)

	require.NoError(t, s.Connect(context.Background(), alice))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, b.received(CmdSend, "/app/chat.sendMessage"), 1)
}

func TestRetriesExhausted(t *testing.T) {
	b := &fakeBroker{failDials: 100}
	cfg := testConfig()
	cfg.Backoff = Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 2}
	s, rec := newTestSession(t, cfg, b, &fakeHistory{})

	require.Error(t, s.Connect(context.Background(), alice))

	require.Eventually(t, func() bool {
		for _, e := range rec.errs() {
			if errors.Is(e, ErrRetriesExhausted) {
				return true
			}
		}
		return false
	}, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, b.dialCount())
	assert.Equal(t, StateDisconnected, s.State())

	// A new Connect resets the budget.
	b.mu.Lock()
	b.failDials = 0
	b.mu.Unlock()
	require.NoError(t, s.Connect(context.Background(), alice))
	assert.Equal(t, StateConnected, s.State())
}

func TestDisconnectCancelsRetry(t *testing.T) {
	b := &fakeBroker{failDials: 100}
	cfg := testConfig()
	cfg.Backoff = Backoff{Base: 50 * time.Millisecond, Max: time.Second, MaxAttempts: 5}
	s, _ := newTestSession(t, cfg, b, &fakeHistory{})

	require.Error(t, s.Connect(context.Background(), alice))
	s.Disconnect()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, b.dialCount())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestDisconnectKeepsMessages(t *testing.T) {
	b := &fakeBroker{}
	s, _ := newTestSession(t, testConfig(), b, &fakeHistory{})
	require.NoError(t, s.Connect(context.Background(), alice))
	_, err := s.Send(context.Background(), domain.NewChat("alice", "bye"))
	require.NoError(t, err)

	s.Disconnect()

	assert.Equal(t, StateDisconnected, s.State())
	assert.Len(t, s.Messages(), 1)

	_, err = s.Send(context.Background(), domain.NewChat("alice", "after"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHistoryFailureLeavesListUnchanged(t *testing.T) {
	b := &fakeBroker{}
	h := &fakeHistory{}
	s, rec := newTestSession(t, testConfig(), b, h)
	require.NoError(t, s.Connect(context.Background(), alice))
	_, err := s.Send(context.Background(), domain.NewChat("alice", "keep me"))
	require.NoError(t, err)
	before := s.Messages()

	h.mu.Lock()
	h.err = errors.New("503")
	h.mu.Unlock()

	require.Error(t, s.RefreshHistory(context.Background()))
	assert.Equal(t, before, s.Messages())
	assert.NotEmpty(t, rec.errs())
}

func TestLivenessFailureTriggersReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.LivenessInterval = 20 * time.Millisecond
	b := &fakeBroker{}
	s, _ := newTestSession(t, cfg, b, &fakeHistory{}, WithHealthProber(failingProber{}))

	require.NoError(t, s.Connect(context.Background(), alice))

	require.Eventually(t, func() bool { return b.dialCount() >= 2 }, waitFor, tick)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := &fakeBroker{}
	s := NewSession(testConfig(), b, &fakeHistory{}, WithLogger(zerolog.Nop()))
	t.Cleanup(s.Disconnect)

	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.handle)
	unsubscribe()
	unsubscribe()

	require.NoError(t, s.Connect(context.Background(), alice))
	assert.Empty(t, rec.kinds())
}

func TestHandlersSeeEventsInOrder(t *testing.T) {
	b := &fakeBroker{}
	s, _ := newTestSession(t, testConfig(), b, &fakeHistory{})

	var first, second []EventKind
	s.Subscribe(func(ev Event) { first = append(first, ev.Kind) })
	s.Subscribe(func(ev Event) {
		second = append(second, ev.Kind)
		_ = s.Messages()
	})

	require.NoError(t, s.Connect(context.Background(), alice))
	s.Disconnect()

	assert.Equal(t, first, second)
	assert.Equal(t, []EventKind{EventState, EventState, EventHistory, EventState}, first)
}
