package hireline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport is the slice of the socket the reconciler needs for sends.
type Transport interface {
	IsConnected() bool
	SendMessage(ctx context.Context, p SendPayload) (SendAck, error)
}

// SendRequest describes one user-initiated send. TempID must reference an
// optimistic entry already in the buffer. Exactly one of ReceiverID or
// ConversationID is set.
type SendRequest struct {
	TempID         string
	ConversationID string
	ReceiverID     string
	Body           string
}

// Reconciler merges locally-originated and remotely-pushed messages into one
// ordered, duplicate-free sequence per conversation and drives message status
// transitions. Each conversation holds an append-ordered buffer of messages
// not yet confirmed present in the server-fetched conversation object.
//
// Buffers are updated copy-on-write: a mutation replaces the conversation's
// slice rather than editing it in place, so snapshots handed out earlier stay
// valid and callers can use referential inequality as a change signal.
type Reconciler struct {
	selfID string
	alert  AlertFunc
	log    zerolog.Logger

	mu      sync.RWMutex
	buffers map[string][]Message
}

// NewReconciler creates a reconciler for the given local user id. The alert
// function receives user-facing send failures; nil disables alerts.
func NewReconciler(selfID string, alert AlertFunc, logger *zerolog.Logger) *Reconciler {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Reconciler{
		selfID:  selfID,
		alert:   alert,
		log:     log,
		buffers: make(map[string][]Message),
	}
}

// NewOptimistic builds a local message with a fresh temp id, status sending,
// and the current timestamp. It does not insert it; pair with AddOptimistic.
func (r *Reconciler) NewOptimistic(conversationID, body string) Message {
	return Message{
		TempID:         uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       r.selfID,
		Body:           body,
		Status:         StatusSending,
		CreatedAt:      time.Now().UTC(),
	}
}

// AddOptimistic inserts a locally-originated message into the conversation's
// buffer before any network confirmation. Missing temp id or status are
// filled in so the entry is always correlatable.
func (r *Reconciler) AddOptimistic(conversationID string, m Message) Message {
	if m.TempID == "" {
		m.TempID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = StatusSending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ConversationID = conversationID

	r.mu.Lock()
	r.buffers[conversationID] = append(cloneMessages(r.buffers[conversationID]), m)
	r.mu.Unlock()
	return m
}

// AddRemote appends a remotely-pushed message to the conversation's buffer.
// Pushes whose sender is the local user are ignored: the sender's own message
// is already represented by its optimistic entry, and the server's echo would
// double-count it. Redelivered ids (at-least-once transport) are ignored too.
func (r *Reconciler) AddRemote(conversationID string, m Message) bool {
	if m.SenderID == r.selfID {
		r.log.Debug().Str("conversation", conversationID).Msg("suppressing self-echo")
		return false
	}
	m.ConversationID = conversationID
	if m.Status == "" {
		m.Status = StatusSent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf := r.buffers[conversationID]
	for _, existing := range buf {
		if existing.Key() == m.Key() {
			return false
		}
	}
	r.buffers[conversationID] = append(cloneMessages(buf), m)
	return true
}

// UpdateStatus locates the buffered entry by temp id and applies the status
// transition. When serverID is supplied the entry's identity becomes the
// server id and the temp id is cleared; the temp id is retained otherwise
// (e.g. transitioning to failed). Entries already in a terminal state are
// left untouched.
func (r *Reconciler) UpdateStatus(conversationID, tempID string, status MessageStatus, serverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := r.buffers[conversationID]
	for i, m := range buf {
		if m.TempID != tempID {
			continue
		}
		if m.Status.Terminal() {
			return false
		}
		next := cloneMessages(buf)
		next[i].Status = status
		if serverID != "" {
			next[i].ID = serverID
			next[i].TempID = ""
		}
		r.buffers[conversationID] = next
		return true
	}
	return false
}

// Buffer returns a snapshot of the conversation's pending messages.
func (r *Reconciler) Buffer(conversationID string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneMessages(r.buffers[conversationID])
}

// Drop discards one conversation's buffer (conversation close).
func (r *Reconciler) Drop(conversationID string) {
	r.mu.Lock()
	delete(r.buffers, conversationID)
	r.mu.Unlock()
}

// Reset discards all buffered state.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.buffers = make(map[string][]Message)
	r.mu.Unlock()
}

// Send emits the buffered optimistic entry referenced by req over the
// transport and resolves its status from the acknowledgment.
//
// An empty or whitespace-only body is silently declined. A send with no live
// connection fails immediately: the entry moves to failed, one alert is
// raised, and nothing touches the network. Otherwise the entry moves to sent
// (adopting the server-assigned id) on a positive ack, or to failed with a
// user-visible alert carrying the server's reason on a negative ack, a
// transport error, or an acknowledgment timeout.
func (r *Reconciler) Send(ctx context.Context, conn Transport, req SendRequest) error {
	if strings.TrimSpace(req.Body) == "" {
		return nil
	}

	if conn == nil || !conn.IsConnected() {
		r.UpdateStatus(req.ConversationID, req.TempID, StatusFailed, "")
		r.raise(Alert{Title: "Connection error", Description: "Not connected. The message was not sent."})
		return ErrNotConnected
	}

	ack, err := conn.SendMessage(ctx, SendPayload{
		ReceiverID:     req.ReceiverID,
		ConversationID: req.ConversationID,
		Body:           req.Body,
	})
	if err != nil {
		r.UpdateStatus(req.ConversationID, req.TempID, StatusFailed, "")
		r.log.Warn().Err(err).Str("tempId", req.TempID).Msg("send failed")
		r.raise(Alert{Title: "Message failed", Description: "Failed to send message."})
		return err
	}

	if ack.OK && ack.MessageID != "" {
		r.UpdateStatus(req.ConversationID, req.TempID, StatusSent, ack.MessageID)
		return nil
	}

	r.UpdateStatus(req.ConversationID, req.TempID, StatusFailed, "")
	reason := ack.Error
	if reason == "" {
		reason = "Failed to send message."
	}
	r.raise(Alert{Title: "Message failed", Description: reason})
	return nil
}

// MergeConversation merges the conversation's buffer into a server-fetched
// Conversation. Buffered entries whose current identity already appears in
// conv.Messages are dropped as duplicates. When nothing new remains, the
// input is returned unchanged; callers rely on referential equality to skip
// re-renders. Otherwise a new Conversation is returned with the combined list
// sorted ascending by CreatedAt (stable, so equal timestamps keep buffer
// insertion order), LastMessage recomputed, and UpdatedAt set to the final
// message's timestamp. The input is never mutated.
func (r *Reconciler) MergeConversation(conv *Conversation) *Conversation {
	if conv == nil {
		return nil
	}

	r.mu.RLock()
	buf := r.buffers[conv.ID]
	r.mu.RUnlock()
	if len(buf) == 0 {
		return conv
	}

	seen := make(map[string]struct{}, len(conv.Messages))
	for _, m := range conv.Messages {
		seen[m.Key()] = struct{}{}
	}

	var fresh []Message
	for _, m := range buf {
		if _, dup := seen[m.Key()]; !dup {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return conv
	}

	merged := make([]Message, 0, len(conv.Messages)+len(fresh))
	merged = append(merged, conv.Messages...)
	merged = append(merged, fresh...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	last := merged[len(merged)-1]
	out := *conv
	out.Messages = merged
	out.LastMessage = &last
	out.UpdatedAt = last.CreatedAt
	return &out
}

func (r *Reconciler) raise(a Alert) {
	if r.alert == nil {
		return
	}
	safeCall(func() { r.alert(a) })
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
