package chat

import "github.com/weiawesome/fin-dashboard/internal/domain"

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventKind discriminates Events.
type EventKind int

const (
	// EventMessage: a message was appended (local send or incoming).
	EventMessage EventKind = iota
	// EventConfirmed: a pending message was acknowledged.
	EventConfirmed
	// EventDelayed: a sent message is still unacknowledged after the delay threshold.
	EventDelayed
	// EventHistory: the list was replaced by a reconciliation.
	EventHistory
	// EventState: the connection state changed.
	EventState
	// EventError: a transport, handshake or history error occurred.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConfirmed:
		return "confirmed"
	case EventDelayed:
		return "delayed"
	case EventHistory:
		return "history"
	case EventState:
		return "state"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is delivered to subscribers. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Message  domain.Message
	Messages []domain.Message
	State    State
	Err      error
}

// Handler receives events synchronously and in order. Handlers may read
// State and Messages but must not call Send, Connect, Disconnect or
// RefreshHistory on the Session that invoked them.
type Handler func(Event)
