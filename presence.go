package hireline

import "sync"

// PresenceTracker maintains the last known online/offline status per user id.
// Every inbound presence event unconditionally overwrites the user's record
// (last-write-wins, no sequence numbers consulted).
type PresenceTracker struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{records: make(map[string]PresenceRecord)}
}

// Observe records an inbound presence event.
func (t *PresenceTracker) Observe(rec PresenceRecord) {
	if rec.UserID == "" {
		return
	}
	t.mu.Lock()
	t.records[rec.UserID] = rec
	t.mu.Unlock()
}

// Get returns the last known presence for a user. ok is false when no event
// has ever been observed for that user; absence means unknown, not error.
func (t *PresenceTracker) Get(userID string) (PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[userID]
	return rec, ok
}

// IsOnline reports whether the user's last known status is online.
// Unknown users are offline.
func (t *PresenceTracker) IsOnline(userID string) bool {
	rec, ok := t.Get(userID)
	return ok && rec.Status == PresenceOnline
}

// Reset discards all presence state.
func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	t.records = make(map[string]PresenceRecord)
	t.mu.Unlock()
}
