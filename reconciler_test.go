package hireline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an ack-scripted Transport for reconciler tests.
type fakeTransport struct {
	connected bool
	ack       SendAck
	err       error

	calls int
	last  SendPayload
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) SendMessage(ctx context.Context, p SendPayload) (SendAck, error) {
	f.calls++
	f.last = p
	if f.err != nil {
		return SendAck{}, f.err
	}
	ack := f.ack
	ack.RequestID = p.RequestID
	return ack, nil
}

func newTestReconciler(t *testing.T) (*Reconciler, *[]Alert) {
	t.Helper()
	var alerts []Alert
	r := NewReconciler("user-a", func(a Alert) { alerts = append(alerts, a) }, nil)
	return r, &alerts
}

func TestReconcilerOptimisticThenAck(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		r, alerts := newTestReconciler(t)
		conn := &fakeTransport{connected: true, ack: SendAck{OK: true, MessageID: "m1"}}

		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))
		require.NotEmpty(t, msg.TempID)
		require.Equal(t, StatusSending, msg.Status)

		// Immediately visible in the merged view, exactly once.
		view := r.MergeConversation(&Conversation{ID: "c1"})
		require.Len(t, view.Messages, 1)
		require.Equal(t, "Hello", view.Messages[0].Body)
		require.Equal(t, StatusSending, view.Messages[0].Status)

		err := r.Send(context.Background(), conn, SendRequest{
			TempID: msg.TempID, ConversationID: "c1", Body: "Hello",
		})
		require.NoError(t, err)
		require.Equal(t, 1, conn.calls)

		view = r.MergeConversation(&Conversation{ID: "c1"})
		require.Len(t, view.Messages, 1)
		got := view.Messages[0]
		require.Equal(t, "m1", got.ID)
		require.Empty(t, got.TempID, "tempId cleared once the server id is authoritative")
		require.Equal(t, StatusSent, got.Status)
		require.Empty(t, *alerts)
	})

	t.Run("nack marks failed and alerts with server reason", func(t *testing.T) {
		r, alerts := newTestReconciler(t)
		conn := &fakeTransport{connected: true, ack: SendAck{OK: false, Error: "rate limited"}}

		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))
		err := r.Send(context.Background(), conn, SendRequest{
			TempID: msg.TempID, ConversationID: "c1", Body: "Hello",
		})
		require.NoError(t, err)

		view := r.MergeConversation(&Conversation{ID: "c1"})
		require.Len(t, view.Messages, 1)
		got := view.Messages[0]
		require.Equal(t, StatusFailed, got.Status)
		require.Equal(t, msg.TempID, got.TempID, "tempId retained when no server id was assigned")
		require.Empty(t, got.ID)

		require.Len(t, *alerts, 1)
		require.Equal(t, "rate limited", (*alerts)[0].Description)
	})

	t.Run("transport error marks failed with generic alert", func(t *testing.T) {
		r, alerts := newTestReconciler(t)
		conn := &fakeTransport{connected: true, err: errors.New("write: broken pipe")}

		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))
		err := r.Send(context.Background(), conn, SendRequest{
			TempID: msg.TempID, ConversationID: "c1", Body: "Hello",
		})
		require.Error(t, err)

		view := r.MergeConversation(&Conversation{ID: "c1"})
		require.Equal(t, StatusFailed, view.Messages[0].Status)
		require.Len(t, *alerts, 1)
	})
}

func TestReconcilerDisconnectedSend(t *testing.T) {
	t.Run("no transport", func(t *testing.T) {
		r, alerts := newTestReconciler(t)
		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))

		err := r.Send(context.Background(), nil, SendRequest{
			TempID: msg.TempID, ConversationID: "c1", Body: "Hello",
		})
		require.ErrorIs(t, err, ErrNotConnected)

		view := r.MergeConversation(&Conversation{ID: "c1"})
		require.Equal(t, StatusFailed, view.Messages[0].Status)
		require.Len(t, *alerts, 1)
	})

	t.Run("disconnected transport never emits", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		conn := &fakeTransport{connected: false}
		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))

		err := r.Send(context.Background(), conn, SendRequest{
			TempID: msg.TempID, ConversationID: "c1", Body: "Hello",
		})
		require.ErrorIs(t, err, ErrNotConnected)
		require.Zero(t, conn.calls, "no network call while disconnected")
	})
}

func TestReconcilerEmptyBodyDeclined(t *testing.T) {
	r, alerts := newTestReconciler(t)
	conn := &fakeTransport{connected: true}

	err := r.Send(context.Background(), conn, SendRequest{
		TempID: "t-1", ConversationID: "c1", Body: "   \t\n",
	})
	require.NoError(t, err)
	require.Zero(t, conn.calls)
	require.Empty(t, *alerts)
}

func TestReconcilerSelfEchoSuppression(t *testing.T) {
	r, _ := newTestReconciler(t)
	msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))

	// The server echoes the sender's own message back; it must not appear twice.
	echoed := Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "user-a",
		Body:           "Hello",
		CreatedAt:      msg.CreatedAt,
	}
	require.False(t, r.AddRemote("c1", echoed))

	view := r.MergeConversation(&Conversation{ID: "c1"})
	require.Len(t, view.Messages, 1)
}

func TestReconcilerRemoteRedelivery(t *testing.T) {
	r, _ := newTestReconciler(t)
	m := Message{ID: "m1", ConversationID: "c1", SenderID: "user-b", Body: "hi", CreatedAt: time.Now()}

	require.True(t, r.AddRemote("c1", m))
	require.False(t, r.AddRemote("c1", m), "at-least-once redelivery is dropped")
	require.Len(t, r.Buffer("c1"), 1)
}

func TestReconcilerUpdateStatus(t *testing.T) {
	t.Run("terminal states never revert", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))

		require.True(t, r.UpdateStatus("c1", msg.TempID, StatusFailed, ""))
		require.False(t, r.UpdateStatus("c1", msg.TempID, StatusSent, "m1"))

		buf := r.Buffer("c1")
		require.Equal(t, StatusFailed, buf[0].Status)
		require.Empty(t, buf[0].ID)
	})

	t.Run("unknown temp id", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		require.False(t, r.UpdateStatus("c1", "missing", StatusSent, "m1"))
	})
}

func TestMergeConversation(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("idempotent and referentially stable", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		conv := &Conversation{ID: "c1", Messages: []Message{
			{ID: "m1", SenderID: "user-b", Body: "hi", CreatedAt: base},
		}}

		// Empty buffer: same object back.
		require.Same(t, conv, r.MergeConversation(conv))

		// Buffer contains only ids the server list already has: same object back.
		r.AddRemote("c1", Message{ID: "m1", SenderID: "user-b", Body: "hi", CreatedAt: base})
		require.Same(t, conv, r.MergeConversation(conv))

		// Two merges in a row with no intervening change: identical results.
		r.AddRemote("c1", Message{ID: "m2", SenderID: "user-b", Body: "again", CreatedAt: base.Add(time.Minute)})
		first := r.MergeConversation(conv)
		second := r.MergeConversation(conv)
		require.NotSame(t, conv, first)
		require.Equal(t, first, second)
	})

	t.Run("input never mutated", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		conv := &Conversation{ID: "c1", Messages: []Message{
			{ID: "m1", SenderID: "user-b", Body: "hi", CreatedAt: base},
		}}
		r.AddRemote("c1", Message{ID: "m2", SenderID: "user-b", Body: "new", CreatedAt: base.Add(time.Hour)})

		merged := r.MergeConversation(conv)
		require.Len(t, conv.Messages, 1, "input conversation untouched")
		require.Len(t, merged.Messages, 2)
	})

	t.Run("ordering is non-decreasing with arbitrary server order", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		conv := &Conversation{ID: "c1", Messages: []Message{
			{ID: "m3", SenderID: "user-b", Body: "3", CreatedAt: base.Add(3 * time.Minute)},
			{ID: "m1", SenderID: "user-b", Body: "1", CreatedAt: base.Add(1 * time.Minute)},
		}}
		r.AddRemote("c1", Message{ID: "m2", SenderID: "user-b", Body: "2", CreatedAt: base.Add(2 * time.Minute)})
		r.AddRemote("c1", Message{ID: "m4", SenderID: "user-b", Body: "4", CreatedAt: base.Add(4 * time.Minute)})

		merged := r.MergeConversation(conv)
		require.Len(t, merged.Messages, 4)
		for i := 1; i < len(merged.Messages); i++ {
			require.False(t, merged.Messages[i].CreatedAt.Before(merged.Messages[i-1].CreatedAt))
		}
		require.Equal(t, "m4", merged.LastMessage.ID)
		require.Equal(t, base.Add(4*time.Minute), merged.UpdatedAt)
	})

	t.Run("equal timestamps keep buffer insertion order", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		r.AddRemote("c1", Message{ID: "m1", SenderID: "user-b", Body: "first", CreatedAt: base})
		r.AddRemote("c1", Message{ID: "m2", SenderID: "user-b", Body: "second", CreatedAt: base})

		merged := r.MergeConversation(&Conversation{ID: "c1"})
		require.Equal(t, "m1", merged.Messages[0].ID)
		require.Equal(t, "m2", merged.Messages[1].ID)
	})

	t.Run("deduplicates by current identity", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		msg := r.AddOptimistic("c1", r.NewOptimistic("c1", "Hello"))
		require.True(t, r.UpdateStatus("c1", msg.TempID, StatusSent, "m1"))

		// Server conversation already absorbed m1.
		conv := &Conversation{ID: "c1", Messages: []Message{
			{ID: "m1", SenderID: "user-a", Body: "Hello", CreatedAt: msg.CreatedAt},
		}}
		require.Same(t, conv, r.MergeConversation(conv))
		require.Len(t, r.MergeConversation(conv).Messages, 1)
	})

	t.Run("nil conversation", func(t *testing.T) {
		r, _ := newTestReconciler(t)
		require.Nil(t, r.MergeConversation(nil))
	})
}

func TestReconcilerTeardown(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.AddRemote("c1", Message{ID: "m1", SenderID: "user-b", CreatedAt: time.Now()})
	r.AddRemote("c2", Message{ID: "m2", SenderID: "user-b", CreatedAt: time.Now()})

	r.Drop("c1")
	require.Empty(t, r.Buffer("c1"))
	require.Len(t, r.Buffer("c2"), 1)

	r.Reset()
	require.Empty(t, r.Buffer("c2"))
}
