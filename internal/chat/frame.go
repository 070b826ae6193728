package chat

import (
	"fmt"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

// Command is the verb of a frame.
type Command string

const (
	CmdConnect     Command = "CONNECT"
	CmdConnected   Command = "CONNECTED"
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdSend        Command = "SEND"
	CmdMessage     Command = "MESSAGE"
	CmdError       Command = "ERROR"
	CmdDisconnect  Command = "DISCONNECT"
)

// Frame is one JSON document carried in a websocket text message.
type Frame struct {
	Command     Command         `json:"command"`
	Destination string          `json:"destination,omitempty"`
	Login       string          `json:"login,omitempty"`
	Token       string          `json:"token,omitempty"`
	Body        *domain.Message `json:"body,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Destinations names the channels a session talks to.
type Destinations struct {
	// Broadcast is the public topic every participant subscribes to.
	Broadcast string `mapstructure:"broadcast"`
	// Private is a format string taking the identity, e.g. "/user/%s/queue/private".
	Private string `mapstructure:"private"`
	// Publish receives outgoing chat messages.
	Publish string `mapstructure:"publish"`
	// Join receives the JOIN announcement after each connect.
	Join string `mapstructure:"join"`
}

// DefaultDestinations mirrors the backend's broker layout.
func DefaultDestinations() Destinations {
	return Destinations{
		Broadcast: "/topic/public",
		Private:   "/user/%s/queue/private",
		Publish:   "/app/chat.sendMessage",
		Join:      "/app/chat.addUser",
	}
}

// PrivateFor returns the private destination of identity.
func (d Destinations) PrivateFor(identity string) string {
	return fmt.Sprintf(d.Private, identity)
}
