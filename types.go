package hireline

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic REST response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Messaging Types
// ============================================================================

// MessageStatus is the delivery state of a locally-originated message.
// A message only moves sending → sent or sending → failed; terminal
// states never revert.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Terminal reports whether s is a final delivery state.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Message is a single conversation entry. Before server acknowledgment it is
// identified by TempID only; after acknowledgment TempID is cleared and the
// server-assigned ID becomes authoritative.
type Message struct {
	ID             string        `json:"id,omitempty"`
	TempID         string        `json:"tempId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Body           string        `json:"body"`
	Status         MessageStatus `json:"status,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Key returns the message's current authoritative identity: the server id
// once assigned, otherwise the client-generated temp id.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// Participant is a conversation member.
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// Conversation is a server-owned conversation with its ordered message list.
// LastMessage is derived: the max-createdAt entry of Messages.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants,omitempty"`
	Messages     []Message     `json:"messages"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ============================================================================
// Presence Types
// ============================================================================

// PresenceStatus is a user's last reported availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord is the last known presence for one user.
type PresenceRecord struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// ============================================================================
// Notification Types
// ============================================================================

// Notification is one entry of the user-visible feed. Real-time items may
// arrive without an ID; those are ephemeral and never stored.
type Notification struct {
	ID         string    `json:"id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Alert is a transient user-facing notice (toast). Alerts are side effects;
// they are never part of stored state.
type Alert struct {
	Title       string
	Description string
}

// AlertFunc receives user-facing alerts.
type AlertFunc func(Alert)

// ============================================================================
// Wire Types
// ============================================================================

// envelope is the wire format for all socket events, both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SendPayload is the outbound message.send payload. Exactly one of
// ReceiverID (new direct conversation) or ConversationID must be set.
type SendPayload struct {
	RequestID      string `json:"requestId"`
	ReceiverID     string `json:"receiverId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Body           string `json:"body"`
}

// SendAck is the server's acknowledgment of a message.send.
type SendAck struct {
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
