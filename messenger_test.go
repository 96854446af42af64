package hireline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMessenger(t *testing.T, conn Transport) *Messenger {
	t.Helper()
	m := NewMessenger(nil, &MessengerConfig{Token: "tok", UserID: "user-a"})
	m.conn = conn
	return m
}

func TestMessengerConnectNoSession(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		m := NewMessenger(nil, &MessengerConfig{UserID: "user-a"})
		require.NoError(t, m.Connect(context.Background()))
		require.Nil(t, m.socket, "no connection object is created without a credential")
		require.False(t, m.IsConnected())
	})

	t.Run("missing user id", func(t *testing.T) {
		m := NewMessenger(nil, &MessengerConfig{Token: "tok"})
		require.NoError(t, m.Connect(context.Background()))
		require.Nil(t, m.socket)
	})
}

func TestMessengerSendMessage(t *testing.T) {
	t.Run("happy path reaches merged view and cache", func(t *testing.T) {
		conn := &fakeTransport{connected: true, ack: SendAck{OK: true, MessageID: "m1"}}
		m := newTestMessenger(t, conn)

		msg, err := m.SendMessage(context.Background(), "c1", "", "Hello")
		require.NoError(t, err)
		require.NotEmpty(t, msg.TempID)
		require.Equal(t, "c1", conn.last.ConversationID)
		require.Equal(t, "Hello", conn.last.Body)

		view := m.MergedConversation(&Conversation{ID: "c1"})
		require.Len(t, view.Messages, 1)
		require.Equal(t, "m1", view.Messages[0].ID)
		require.Equal(t, StatusSent, view.Messages[0].Status)

		// Merge wrote the reconciled view back through the one cache primitive.
		cached, ok := m.Cache().Get("c1")
		require.True(t, ok)
		require.Equal(t, "m1", cached.LastMessage.ID)
	})

	t.Run("empty body declined without buffering", func(t *testing.T) {
		conn := &fakeTransport{connected: true}
		m := newTestMessenger(t, conn)

		msg, err := m.SendMessage(context.Background(), "c1", "", "   ")
		require.NoError(t, err)
		require.Empty(t, msg.Key())
		require.Zero(t, conn.calls)

		conv := &Conversation{ID: "c1"}
		require.Same(t, conv, m.MergedConversation(conv))
	})

	t.Run("disconnected send fails with alert", func(t *testing.T) {
		m := newTestMessenger(t, nil)
		var alerts []Alert
		m.OnAlert(func(a Alert) { alerts = append(alerts, a) })

		msg, err := m.SendMessage(context.Background(), "c1", "", "Hello")
		require.ErrorIs(t, err, ErrNotConnected)

		view := m.MergedConversation(&Conversation{ID: "c1"})
		require.Len(t, view.Messages, 1)
		require.Equal(t, StatusFailed, view.Messages[0].Status)
		require.Equal(t, msg.TempID, view.Messages[0].TempID)
		require.Len(t, alerts, 1)
	})

	t.Run("receiver id routes direct sends", func(t *testing.T) {
		conn := &fakeTransport{connected: true, ack: SendAck{OK: true, MessageID: "m1"}}
		m := newTestMessenger(t, conn)

		_, err := m.SendMessage(context.Background(), "", "user-b", "Hi there")
		require.NoError(t, err)
		require.Equal(t, "user-b", conn.last.ReceiverID)
		require.Empty(t, conn.last.ConversationID)
	})
}

func TestMessengerMergedConversationStability(t *testing.T) {
	m := newTestMessenger(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := &Conversation{ID: "c1", Messages: []Message{
		{ID: "m1", SenderID: "user-b", Body: "hi", CreatedAt: base},
	}}

	// No buffered delta: same reference back, nothing cached.
	require.Same(t, conv, m.MergedConversation(conv))
	_, ok := m.Cache().Get("c1")
	require.False(t, ok)
}

func TestMessengerRESTFetch(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/messaging/conversations", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeResult(w, []Conversation{{ID: "c1", UpdatedAt: base}})
	})
	mux.HandleFunc("/api/messaging/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, []Message{
			{ID: "m1", ConversationID: "c1", SenderID: "user-b", Body: "hi", CreatedAt: base},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL))
	m := NewMessenger(client, &MessengerConfig{Token: "tok", UserID: "user-a"})

	convs, err := m.RefreshConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)

	// A buffered optimistic entry shows up in the loaded view.
	m.recon.AddOptimistic("c1", m.recon.NewOptimistic("c1", "pending"))

	view, err := m.LoadConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	require.Equal(t, "pending", view.LastMessage.Body)
	require.Equal(t, StatusSending, view.LastMessage.Status)
}

func TestMessengerReset(t *testing.T) {
	m := newTestMessenger(t, nil)
	m.recon.AddRemote("c1", Message{ID: "m1", SenderID: "user-b", CreatedAt: time.Now()})
	m.Presence().Observe(PresenceRecord{UserID: "u1", Status: PresenceOnline})
	m.Notifications().ReplaceAll([]Notification{{ID: "n1"}})
	m.Cache().Put([]Conversation{{ID: "c1"}})

	m.Reset()
	require.Empty(t, m.recon.Buffer("c1"))
	require.False(t, m.Presence().IsOnline("u1"))
	require.Zero(t, m.Notifications().Len())
	require.Empty(t, m.Cache().List())
}

func writeResult(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(Result{OK: true, Data: raw})
}
