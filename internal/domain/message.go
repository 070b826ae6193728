package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageType discriminates chat message variants.
type MessageType string

const (
	MessageChat    MessageType = "CHAT"
	MessageJoin    MessageType = "JOIN"
	MessageLeave   MessageType = "LEAVE"
	MessageReceipt MessageType = "RECEIPT"
	MessageTest    MessageType = "TEST"
)

// Valid reports whether t is a known variant.
func (t MessageType) Valid() bool {
	switch t {
	case MessageChat, MessageJoin, MessageLeave, MessageReceipt, MessageTest:
		return true
	}
	return false
}

// SendStatus is a UI hint layered on a locally sent message.
type SendStatus string

const (
	SendStatusNone    SendStatus = ""
	SendStatusSent    SendStatus = "sent"
	SendStatusDelayed SendStatus = "delayed"
)

// Confirmation tracks the server's view of a message this client knows about.
type Confirmation struct {
	ServerID   string
	Pending    bool
	SendStatus SendStatus
}

// Message is a chat message. Which fields are meaningful depends on Type:
// CHAT and TEST carry Content, JOIN and LEAVE only Sender, RECEIPT only
// LocalID (and a ServerID when the server assigned one).
type Message struct {
	Type      MessageType
	Content   string
	Sender    string
	Timestamp time.Time

	// LocalID is the correlation token of the client that originated the
	// message. Once assigned it is never dropped.
	LocalID string

	Confirmation Confirmation
}

// NewChat returns a CHAT message from sender.
func NewChat(sender, content string) Message {
	return Message{Type: MessageChat, Sender: sender, Content: content}
}

// NewJoin returns a JOIN announcement.
func NewJoin(sender string) Message {
	return Message{Type: MessageJoin, Sender: sender}
}

// NewLeave returns a LEAVE announcement.
func NewLeave(sender string) Message {
	return Message{Type: MessageLeave, Sender: sender}
}

// NewReceipt acknowledges the message correlated by localID.
func NewReceipt(sender, localID, serverID string) Message {
	return Message{
		Type:         MessageReceipt,
		Sender:       sender,
		LocalID:      localID,
		Confirmation: Confirmation{ServerID: serverID},
	}
}

// ID returns the server id.
func (m Message) ID() string { return m.Confirmation.ServerID }

// Pending reports whether the message awaits confirmation.
func (m Message) Pending() bool { return m.Confirmation.Pending }

// Key returns the identity used for equality: server id when known, else
// the local id. Empty when the message has neither.
func (m Message) Key() string {
	if m.Confirmation.ServerID != "" {
		return "id:" + m.Confirmation.ServerID
	}
	if m.LocalID != "" {
		return "local:" + m.LocalID
	}
	return ""
}

// Confirm marks the message as acknowledged, adopting serverID when given.
func (m *Message) Confirm(serverID string) {
	if serverID != "" {
		m.Confirmation.ServerID = serverID
	}
	m.Confirmation.Pending = false
	if m.Confirmation.SendStatus == SendStatusDelayed || m.Confirmation.SendStatus == SendStatusNone {
		m.Confirmation.SendStatus = SendStatusSent
	}
}

// wireMessage is the JSON shape exchanged with the backend.
type wireMessage struct {
	ID         json.RawMessage `json:"id,omitempty"`
	LocalID    string          `json:"localId,omitempty"`
	Type       MessageType     `json:"type"`
	Content    string          `json:"content,omitempty"`
	Sender     string          `json:"sender"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Pending    bool            `json:"pending,omitempty"`
	SendStatus SendStatus      `json:"sendStatus,omitempty"`
}

// MarshalJSON encodes m in the backend wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		LocalID:    m.LocalID,
		Type:       m.Type,
		Content:    m.Content,
		Sender:     m.Sender,
		Pending:    m.Confirmation.Pending,
		SendStatus: m.Confirmation.SendStatus,
	}
	if m.Confirmation.ServerID != "" {
		id, err := json.Marshal(m.Confirmation.ServerID)
		if err != nil {
			return nil, err
		}
		w.ID = id
	}
	if !m.Timestamp.IsZero() {
		w.Timestamp = FormatTimestamp(m.Timestamp)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape, rejecting unknown types. Server ids
// may arrive as JSON numbers or strings.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown message type %q", w.Type)
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}

	*m = Message{
		Type:    w.Type,
		Content: w.Content,
		Sender:  w.Sender,
		LocalID: w.LocalID,
		Confirmation: Confirmation{
			ServerID:   id,
			Pending:    w.Pending,
			SendStatus: w.SendStatus,
		},
	}
	if w.Timestamp != "" {
		ts, err := ParseTimestamp(w.Timestamp)
		if err != nil {
			return err
		}
		m.Timestamp = ts
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	if strings.HasPrefix(s, `"`) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid message id %s", s)
	}
	return n.String(), nil
}

// timestampLayouts lists accepted ISO-8601 forms. Zone-less date-times are
// what the backend's local-date-time serializer emits; they are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// FormatTimestamp renders t as RFC 3339 with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
