package hireline

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MessengerConfig configures the messaging facade.
type MessengerConfig struct {
	// Token and UserID identify the authenticated session. With either empty
	// the messenger stays in the "no session" state: Connect is a no-op and
	// sends fail locally.
	Token  string
	UserID string

	// Socket carries transport tuning (reconnect, heartbeat, ack timeout).
	// Token, UserID, and Logger are injected from this config.
	Socket SocketConfig

	Logger *zerolog.Logger
}

// Messenger is the composed messaging API surface: it wires the socket into
// the reconciler, presence tracker, and notification store, injects the
// current user id, and exposes the conversation-scoped read and write paths.
// It holds no reconciliation state of its own.
type Messenger struct {
	client *Client
	cache  *ConversationCache
	log    zerolog.Logger

	token   string
	userID  string
	sockCfg SocketConfig

	recon         *Reconciler
	presence      *PresenceTracker
	notifications *NotificationStore

	mu     sync.Mutex
	socket *Socket
	conn   Transport
}

// NewMessenger creates the facade. client may be nil when the REST fetch
// surface is unused (socket-only operation).
func NewMessenger(client *Client, cfg *MessengerConfig) *Messenger {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	notifications := NewNotificationStore()
	m := &Messenger{
		client:        client,
		cache:         NewConversationCache(),
		log:           log,
		token:         cfg.Token,
		userID:        cfg.UserID,
		sockCfg:       cfg.Socket,
		presence:      NewPresenceTracker(),
		notifications: notifications,
	}
	m.recon = NewReconciler(cfg.UserID, notifications.Alert, cfg.Logger)
	return m
}

// Connect builds and dials the real-time socket for the current credential,
// attaching the reconciler, presence tracker, and notification store as
// event listeners. With no credential or user id it does nothing (no
// connection object is created). A previous socket is torn down first, with
// its handlers deregistered before its connection closes.
func (m *Messenger) Connect(ctx context.Context) error {
	if m.token == "" || m.userID == "" {
		m.log.Debug().Msg("no session, skipping connect")
		return nil
	}

	m.mu.Lock()
	if m.socket != nil {
		m.socket.Close()
		m.socket = nil
		m.conn = nil
	}

	cfg := m.sockCfg
	cfg.Token = m.token
	cfg.UserID = m.userID
	if cfg.Logger == nil {
		cfg.Logger = &m.log
	}
	sock := NewSocket(m.baseURL(), &cfg)

	sock.OnMessage(func(msg Message) {
		m.recon.AddRemote(msg.ConversationID, msg)
	})
	sock.OnPresence(m.presence.Observe)
	sock.OnNotificationBatch(m.notifications.ReplaceAll)
	sock.OnNotification(m.notifications.Notify)
	sock.OnConnected(func() {
		m.log.Debug().Msg("socket connected")
	})
	sock.OnDisconnected(func(reason string) {
		m.log.Debug().Str("reason", reason).Msg("socket disconnected")
	})

	m.socket = sock
	m.conn = sock
	m.mu.Unlock()

	if err := sock.Dial(ctx); err != nil {
		// Recovered locally: IsConnected stays false, callers read state
		// reactively. The error is still returned for programmatic use.
		return err
	}
	return nil
}

// UpdateCredential replaces the session credential. The existing socket is
// torn down (handlers first) and a fresh connection is established for the
// new credential; an empty credential just disconnects.
func (m *Messenger) UpdateCredential(ctx context.Context, token, userID string) error {
	m.mu.Lock()
	if m.socket != nil {
		m.socket.Close()
		m.socket = nil
		m.conn = nil
	}
	m.token = token
	m.userID = userID
	m.recon = NewReconciler(userID, m.notifications.Alert, &m.log)
	m.mu.Unlock()

	return m.Connect(ctx)
}

// Close tears down the socket. Buffered reconciliation state survives; use
// Reset for a full state reset.
func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.socket == nil {
		return nil
	}
	err := m.socket.Close()
	m.socket = nil
	m.conn = nil
	return err
}

// Reset discards all local state: buffers, presence, notifications, cache.
func (m *Messenger) Reset() {
	m.recon.Reset()
	m.presence.Reset()
	m.notifications.Clear()
	m.cache.Reset()
}

// IsConnected reports whether a live socket is attached.
func (m *Messenger) IsConnected() bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// SendMessage optimistically inserts a message and emits it over the socket.
// The returned Message is the optimistic entry (status sending, temp id
// assigned); its status evolves in the merged view as the acknowledgment
// resolves. An empty or whitespace-only body is silently declined and the
// zero Message is returned. Send failures surface as a failed status plus
// one alert; the error is returned as well for programmatic callers.
func (m *Messenger) SendMessage(ctx context.Context, conversationID, receiverID, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, nil
	}

	msg := m.recon.AddOptimistic(conversationID, m.recon.NewOptimistic(conversationID, body))

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	err := m.recon.Send(ctx, conn, SendRequest{
		TempID:         msg.TempID,
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Body:           body,
	})
	return msg, err
}

// MergedConversation merges the reconciler's buffer into a server-fetched
// conversation. When the merge produced a new view it is written back to the
// conversation cache (the single optimistic-update primitive); when nothing
// changed the input is returned as-is, so callers can compare references to
// skip re-renders. The returned Conversation must not be mutated.
func (m *Messenger) MergedConversation(conv *Conversation) *Conversation {
	merged := m.recon.MergeConversation(conv)
	if merged != conv && merged != nil {
		m.cache.ApplyOptimistic(*merged)
	}
	return merged
}

// RefreshConversations fetches the conversation list over REST and stores it
// in the cache.
func (m *Messenger) RefreshConversations(ctx context.Context) ([]Conversation, error) {
	if m.client == nil {
		return m.cache.List(), nil
	}
	convs, err := m.client.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.Put(convs)
	return convs, nil
}

// LoadConversation fetches one conversation's persisted messages, stores
// them, and returns the reconciled view.
func (m *Messenger) LoadConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if m.client != nil {
		msgs, err := m.client.GetMessages(ctx, conversationID, nil)
		if err != nil {
			return nil, err
		}
		m.cache.PutMessages(conversationID, msgs)
	}
	conv, ok := m.cache.Get(conversationID)
	if !ok {
		conv = Conversation{ID: conversationID}
	}
	return m.MergedConversation(&conv), nil
}

// Presence returns the presence tracker.
func (m *Messenger) Presence() *PresenceTracker {
	return m.presence
}

// Notifications returns the notification store.
func (m *Messenger) Notifications() *NotificationStore {
	return m.notifications
}

// Cache returns the conversation cache.
func (m *Messenger) Cache() *ConversationCache {
	return m.cache
}

// OnAlert registers a handler for user-facing alerts (send failures,
// real-time notification toasts).
func (m *Messenger) OnAlert(fn AlertFunc) {
	m.notifications.OnAlert(fn)
}

func (m *Messenger) baseURL() string {
	if m.client != nil {
		return m.client.BaseURL()
	}
	return DefaultBaseURL
}
