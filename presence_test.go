package hireline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresenceTracker(t *testing.T) {
	t.Run("unknown user is offline, not an error", func(t *testing.T) {
		p := NewPresenceTracker()
		require.False(t, p.IsOnline("u1"))
		_, ok := p.Get("u1")
		require.False(t, ok)
	})

	t.Run("online then offline", func(t *testing.T) {
		p := NewPresenceTracker()
		seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		p.Observe(PresenceRecord{UserID: "u1", Status: PresenceOnline, LastSeen: seen})
		require.True(t, p.IsOnline("u1"))

		p.Observe(PresenceRecord{UserID: "u1", Status: PresenceOffline, LastSeen: seen.Add(time.Hour)})
		require.False(t, p.IsOnline("u1"))

		rec, ok := p.Get("u1")
		require.True(t, ok)
		require.Equal(t, PresenceOffline, rec.Status)
		require.Equal(t, seen.Add(time.Hour), rec.LastSeen)
	})

	t.Run("last write wins unconditionally", func(t *testing.T) {
		p := NewPresenceTracker()
		newer := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		older := newer.Add(-time.Hour)

		p.Observe(PresenceRecord{UserID: "u1", Status: PresenceOnline, LastSeen: newer})
		// A stale event still overwrites; no sequence numbers are consulted.
		p.Observe(PresenceRecord{UserID: "u1", Status: PresenceOffline, LastSeen: older})

		rec, _ := p.Get("u1")
		require.Equal(t, PresenceOffline, rec.Status)
		require.Equal(t, older, rec.LastSeen)
	})

	t.Run("empty user id dropped", func(t *testing.T) {
		p := NewPresenceTracker()
		p.Observe(PresenceRecord{Status: PresenceOnline})
		require.False(t, p.IsOnline(""))
	})

	t.Run("reset", func(t *testing.T) {
		p := NewPresenceTracker()
		p.Observe(PresenceRecord{UserID: "u1", Status: PresenceOnline})
		p.Reset()
		require.False(t, p.IsOnline("u1"))
	})
}
