package hireline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned when an operation requires a live socket.
var ErrNotConnected = errors.New("hireline: not connected")

// ============================================================================
// Configuration
// ============================================================================

// SocketConfig configures the real-time socket.
type SocketConfig struct {
	// Token is the bearer credential attached to the handshake. Dial is a
	// no-op when Token or UserID is empty, the explicit "no session" state.
	Token  string
	UserID string

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	// AckTimeout bounds the wait for a message.send acknowledgment. A send
	// that outlives it resolves to failed rather than hanging in "sending".
	AckTimeout time.Duration

	Logger *zerolog.Logger
}

func (c *SocketConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
}

// SocketState represents the connection state.
type SocketState string

const (
	StateDisconnected SocketState = "disconnected"
	StateConnecting   SocketState = "connecting"
	StateConnected    SocketState = "connected"
	StateReconnecting SocketState = "reconnecting"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// Inbound event names form a closed set; anything else is logged and dropped
// at the boundary.
const (
	eventMessageNew        = "message.new"
	eventMessageAck        = "message.ack"
	eventPresenceChanged   = "presence.changed"
	eventNotificationBatch = "notification.batch"
	eventNotificationNew   = "notification.new"
)

type dispatcher struct {
	mu                  sync.RWMutex
	onMessage           []func(Message)
	onPresence          []func(PresenceRecord)
	onNotificationBatch []func([]Notification)
	onNotification      []func(Notification)
	onConnected         []func()
	onDisconnected      []func(reason string)
	onReconnecting      []func(attempt int, delay time.Duration)
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

// dispatch decodes one inbound envelope and runs the matching handlers.
// Handlers run synchronously on the read loop so per-connection event order
// is preserved; each call is isolated against panics.
func (d *dispatcher) dispatch(env envelope, log zerolog.Logger) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch env.Type {
	case eventMessageNew:
		var m Message
		if err := json.Unmarshal(env.Payload, &m); err != nil || m.SenderID == "" {
			log.Warn().Str("event", env.Type).Msg("dropping malformed event")
			return
		}
		for _, h := range d.onMessage {
			safeCall(func() { h(m) })
		}
	case eventPresenceChanged:
		var p PresenceRecord
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			log.Warn().Str("event", env.Type).Msg("dropping malformed event")
			return
		}
		for _, h := range d.onPresence {
			safeCall(func() { h(p) })
		}
	case eventNotificationBatch:
		var batch []Notification
		if err := json.Unmarshal(env.Payload, &batch); err != nil {
			log.Warn().Str("event", env.Type).Msg("dropping malformed event")
			return
		}
		for _, h := range d.onNotificationBatch {
			safeCall(func() { h(batch) })
		}
	case eventNotificationNew:
		var n Notification
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			log.Warn().Str("event", env.Type).Msg("dropping malformed event")
			return
		}
		for _, h := range d.onNotification {
			safeCall(func() { h(n) })
		}
	default:
		log.Debug().Str("event", env.Type).Msg("dropping unrecognized event")
	}
}

func (d *dispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		safeCall(h)
	}
}

func (d *dispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h := h
		safeCall(func() { h(reason) })
	}
}

func (d *dispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h := h
		safeCall(func() { h(attempt, delay) })
	}
}

func (d *dispatcher) removeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = nil
	d.onPresence = nil
	d.onNotificationBatch = nil
	d.onNotification = nil
	d.onConnected = nil
	d.onDisconnected = nil
	d.onReconnecting = nil
}

func safeCall(f func()) {
	defer func() { recover() }() // a panicking handler must not kill the read loop
	f()
}

// ============================================================================
// Backoff
// ============================================================================

type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newBackoff(config *SocketConfig) *backoff {
	return &backoff{
		base:        config.ReconnectBaseDelay,
		max:         config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (b *backoff) shouldRetry() bool {
	return b.maxAttempts == 0 || b.attempt < b.maxAttempts
}

func (b *backoff) markConnected() {
	b.connectedAt = time.Now()
}

func (b *backoff) next() time.Duration {
	// A connection that held for a minute counts as a fresh start.
	if !b.connectedAt.IsZero() && time.Since(b.connectedAt) > 60*time.Second {
		b.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(b.base) * 0.5)
	delay := time.Duration(math.Min(
		float64(b.base)*math.Pow(2, float64(b.attempt))+float64(jitter),
		float64(b.max),
	))
	b.attempt++
	return delay
}

// ============================================================================
// Socket
// ============================================================================

// Socket owns one live real-time connection tied to an authenticated session.
// It exposes connection state, typed event registration, and the
// send-with-acknowledgment path. Connecting with a new credential always
// means building a new Socket; a closed Socket is not reused.
type Socket struct {
	baseURL string
	config  *SocketConfig
	log     zerolog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            SocketState
	intentionalClose bool
	cancelFn         context.CancelFunc

	dispatcher *dispatcher
	recon      *backoff

	pendingMu   sync.Mutex
	pendingAcks map[string]chan SendAck
}

// NewSocket creates a disconnected socket for the given API base URL.
// Call Dial to establish the connection.
func NewSocket(baseURL string, config *SocketConfig) *Socket {
	cfg := *config
	cfg.defaults()
	return &Socket{
		baseURL:     strings.TrimRight(baseURL, "/"),
		config:      &cfg,
		log:         *cfg.Logger,
		state:       StateDisconnected,
		dispatcher:  newDispatcher(),
		recon:       newBackoff(&cfg),
		pendingAcks: make(map[string]chan SendAck),
	}
}

// OnMessage registers a handler for inbound message pushes.
func (s *Socket) OnMessage(h func(Message)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onMessage = append(s.dispatcher.onMessage, h)
	s.dispatcher.mu.Unlock()
}

// OnPresence registers a handler for presence updates.
func (s *Socket) OnPresence(h func(PresenceRecord)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onPresence = append(s.dispatcher.onPresence, h)
	s.dispatcher.mu.Unlock()
}

// OnNotificationBatch registers a handler for the one-time catch-up batch
// delivered at connection establishment.
func (s *Socket) OnNotificationBatch(h func([]Notification)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onNotificationBatch = append(s.dispatcher.onNotificationBatch, h)
	s.dispatcher.mu.Unlock()
}

// OnNotification registers a handler for real-time notification pushes.
func (s *Socket) OnNotification(h func(Notification)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onNotification = append(s.dispatcher.onNotification, h)
	s.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (s *Socket) OnConnected(h func()) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onConnected = append(s.dispatcher.onConnected, h)
	s.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (s *Socket) OnDisconnected(h func(reason string)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onDisconnected = append(s.dispatcher.onDisconnected, h)
	s.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (s *Socket) OnReconnecting(h func(attempt int, delay time.Duration)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onReconnecting = append(s.dispatcher.onReconnecting, h)
	s.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (s *Socket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the socket currently holds a live connection.
func (s *Socket) IsConnected() bool {
	return s.State() == StateConnected
}

// Dial establishes the connection. When the config carries no credential or
// no user id, Dial does nothing and returns nil: no session, no connection.
func (s *Socket) Dial(ctx context.Context) error {
	if s.config.Token == "" || s.config.UserID == "" {
		s.log.Debug().Msg("no session credential, skipping connect")
		return nil
	}

	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.mu.Unlock()

	wsURL := strings.Replace(s.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + s.config.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("socket connect failed")
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	s.recon.markConnected()

	s.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoop(connCtx)
	go s.heartbeatLoop(connCtx)

	return nil
}

// Close deregisters every handler, abandons pending acknowledgments, and
// closes the connection. Handlers go first so nothing fires across teardown.
func (s *Socket) Close() error {
	s.dispatcher.removeAll()

	s.mu.Lock()
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.failPendingAcks("connection closed")

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// SendMessage emits a message.send event and waits for the matching
// acknowledgment, up to AckTimeout. A timed-out or cancelled wait reports a
// negative ack so the caller can resolve the message to failed.
func (s *Socket) SendMessage(ctx context.Context, p SendPayload) (SendAck, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return SendAck{}, ErrNotConnected
	}

	if p.RequestID == "" {
		p.RequestID = uuid.NewString()
	}

	ch := make(chan SendAck, 1)
	s.pendingMu.Lock()
	s.pendingAcks[p.RequestID] = ch
	s.pendingMu.Unlock()

	payload, err := json.Marshal(p)
	if err != nil {
		s.dropPending(p.RequestID)
		return SendAck{}, err
	}
	data, err := json.Marshal(envelope{Type: "message.send", Payload: payload})
	if err != nil {
		s.dropPending(p.RequestID)
		return SendAck{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.dropPending(p.RequestID)
		return SendAck{}, fmt.Errorf("write message.send: %w", err)
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return SendAck{}, ErrNotConnected
		}
		return ack, nil
	case <-time.After(s.config.AckTimeout):
		s.dropPending(p.RequestID)
		return SendAck{}, fmt.Errorf("acknowledgment timeout after %s", s.config.AckTimeout)
	case <-ctx.Done():
		s.dropPending(p.RequestID)
		return SendAck{}, ctx.Err()
	}
}

func (s *Socket) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			s.mu.Unlock()
			if intentional {
				return
			}

			s.mu.Lock()
			s.state = StateDisconnected
			s.conn = nil
			s.mu.Unlock()

			s.log.Warn().Err(err).Msg("socket read failed")
			s.failPendingAcks("connection lost")
			s.dispatcher.emitDisconnected(err.Error())

			if s.config.AutoReconnect && s.recon.shouldRetry() {
				s.scheduleReconnect(ctx)
			}
			return
		}

		var env envelope
		if json.Unmarshal(data, &env) != nil {
			s.log.Warn().Msg("dropping undecodable frame")
			continue
		}

		if env.Type == eventMessageAck {
			var ack SendAck
			if json.Unmarshal(env.Payload, &ack) == nil && ack.RequestID != "" {
				s.resolvePending(ack)
			}
			continue
		}

		s.dispatcher.dispatch(env, s.log)
	}
}

func (s *Socket) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			connected := s.state == StateConnected
			s.mu.Unlock()
			if !connected || conn == nil {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Force close; the read loop handles the fallout.
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (s *Socket) scheduleReconnect(ctx context.Context) {
	delay := s.recon.next()
	s.mu.Lock()
	s.state = StateReconnecting
	s.mu.Unlock()

	s.dispatcher.emitReconnecting(s.recon.attempt, delay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	s.mu.Lock()
	// Dial checks for Connecting/Connected; reset so it proceeds.
	s.state = StateDisconnected
	s.mu.Unlock()

	if err := s.Dial(ctx); err != nil {
		if s.config.AutoReconnect && s.recon.shouldRetry() {
			s.scheduleReconnect(ctx)
			return
		}
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
	}
}

func (s *Socket) resolvePending(ack SendAck) {
	s.pendingMu.Lock()
	ch, ok := s.pendingAcks[ack.RequestID]
	if ok {
		delete(s.pendingAcks, ack.RequestID)
	}
	s.pendingMu.Unlock()
	if ok {
		ch <- ack
	}
}

func (s *Socket) dropPending(requestID string) {
	s.pendingMu.Lock()
	delete(s.pendingAcks, requestID)
	s.pendingMu.Unlock()
}

func (s *Socket) failPendingAcks(reason string) {
	s.pendingMu.Lock()
	for id, ch := range s.pendingAcks {
		ch <- SendAck{RequestID: id, OK: false, Error: reason}
		delete(s.pendingAcks, id)
	}
	s.pendingMu.Unlock()
}
