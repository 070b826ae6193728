package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/internal/idgen"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// ChatService speaks the frame protocol on behalf of the hub: it
// authenticates connections, assigns server ids, keeps history and fans
// messages out.
type ChatService struct {
	hub     *Hub
	auth    *AuthService
	ids     *idgen.Snowflake
	history *History
	dests   chat.Destinations
	now     func() time.Time
}

func NewChatService(hub *Hub, auth *AuthService, ids *idgen.Snowflake, history *History, dests chat.Destinations) *ChatService {
	return &ChatService{
		hub:     hub,
		auth:    auth,
		ids:     ids,
		history: history,
		dests:   dests,
		now:     time.Now,
	}
}

// History returns stored chat messages, oldest first.
func (s *ChatService) History() []domain.Message {
	return s.history.List()
}

// HandleFrame decodes and dispatches one inbound frame.
func (s *ChatService) HandleFrame(c *Client, data []byte) {
	var f chat.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "invalid frame"})
		return
	}

	ctx := log.WithLogger(context.Background(), log.L().With().Str("client_id", c.ID).Logger())

	if f.Command != chat.CmdConnect && f.Command != chat.CmdDisconnect {
		if _, username := c.Identity(); username == "" {
			c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "not connected"})
			return
		}
	}

	switch f.Command {
	case chat.CmdConnect:
		s.handleConnect(ctx, c, f)
	case chat.CmdSubscribe:
		s.handleSubscribe(ctx, c, f.Destination)
	case chat.CmdUnsubscribe:
		s.hub.Unsubscribe(c, f.Destination)
	case chat.CmdSend:
		s.handleSend(ctx, c, f)
	case chat.CmdDisconnect:
		c.Conn.Close()
	default:
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "unknown command"})
	}
}

func (s *ChatService) handleConnect(ctx context.Context, c *Client, f chat.Frame) {
	token := f.Token
	if token == "" {
		token = c.token
	}
	if token == "" {
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "missing token"})
		return
	}

	claims, err := s.auth.Validate(token)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("chat connect rejected")
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: err.Error()})
		return
	}
	if f.Login != "" && f.Login != claims.Username {
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "login does not match token"})
		return
	}

	c.Authenticate(claims.UserID, claims.Username)
	c.SendFrame(chat.Frame{Command: chat.CmdConnected, Login: claims.Username})
	audit(ctx, ActionChatConnect, claims.UserID, c.ID, "chat connected")
}

// handleSubscribe allows the broadcast topic and the caller's own private
// queue only.
func (s *ChatService) handleSubscribe(ctx context.Context, c *Client, dest string) {
	_, username := c.Identity()
	if dest != s.dests.Broadcast && dest != s.dests.PrivateFor(username) {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldDestination, dest).Msg("subscription refused")
		c.SendFrame(chat.Frame{Command: chat.CmdError, Destination: dest, Error: "subscription not allowed"})
		return
	}
	s.hub.Subscribe(c, dest)
}

func (s *ChatService) handleSend(ctx context.Context, c *Client, f chat.Frame) {
	if f.Body == nil {
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "missing body"})
		return
	}
	_, username := c.Identity()

	switch f.Destination {
	case s.dests.Publish:
		s.publish(ctx, c, username, *f.Body)
	case s.dests.Join:
		join := domain.NewJoin(username)
		join.Timestamp = s.now()
		s.broadcast(ctx, join)
	default:
		c.SendFrame(chat.Frame{Command: chat.CmdError, Destination: f.Destination, Error: "unknown destination"})
	}
}

// publish stores msg under a fresh server id, acknowledges it on the
// sender's private queue, then broadcasts it.
func (s *ChatService) publish(ctx context.Context, c *Client, username string, msg domain.Message) {
	l := log.Ctx(ctx)

	switch msg.Type {
	case domain.MessageChat, domain.MessageTest:
	default:
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "only CHAT and TEST messages can be published"})
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "empty message"})
		return
	}

	id, err := s.ids.Next()
	if err != nil {
		l.Error().Err(err).Msg("failed to generate message id")
		c.SendFrame(chat.Frame{Command: chat.CmdError, Error: "failed to assign message id"})
		return
	}

	msg.Sender = username
	msg.Timestamp = s.now()
	msg.Confirmation = domain.Confirmation{ServerID: id}
	s.history.Append(msg)

	if msg.LocalID != "" {
		receipt := domain.NewReceipt(username, msg.LocalID, id)
		receipt.Timestamp = msg.Timestamp
		if err := s.hub.Publish(s.dests.PrivateFor(username), chat.Frame{Command: chat.CmdMessage, Body: &receipt}); err != nil {
			l.Error().Err(err).Msg("failed to publish receipt")
		}
	}

	l.Debug().Str(log.FieldMessageID, id).Str(log.FieldUsername, username).Msg("chat message stored")
	s.broadcast(ctx, msg)
}

func (s *ChatService) broadcast(ctx context.Context, msg domain.Message) {
	if err := s.hub.Publish(s.dests.Broadcast, chat.Frame{Command: chat.CmdMessage, Body: &msg}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast chat message")
	}
}

// HandleClose announces that an authenticated client left.
func (s *ChatService) HandleClose(c *Client) {
	_, username := c.Identity()
	if username == "" {
		return
	}
	leave := domain.NewLeave(username)
	leave.Timestamp = s.now()
	s.broadcast(context.Background(), leave)
}
