package hireline

import "sync"

// NotificationStore holds the user-visible notification feed.
//
// The stored list changes in exactly three ways: the connection-time batch
// replaces it wholesale, Clear empties it, and Remove drops one entry.
// Real-time notification pushes are toast-only: they raise an alert but are
// never appended. State is process-wide and recreated empty per connection.
type NotificationStore struct {
	mu    sync.RWMutex
	items []Notification

	alertMu  sync.RWMutex
	handlers []AlertFunc
}

// NewNotificationStore creates an empty store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// ReplaceAll installs the catch-up batch delivered at connection time.
// The batch is authoritative for everything missed while offline, so it
// replaces the current list rather than appending to it.
func (s *NotificationStore) ReplaceAll(items []Notification) {
	s.mu.Lock()
	s.items = append([]Notification(nil), items...)
	s.mu.Unlock()
}

// Notify handles one real-time notification push: a transient alert is
// raised, the stored list is untouched.
func (s *NotificationStore) Notify(n Notification) {
	title := n.SenderName
	if title == "" {
		title = "New notification"
	}
	s.Alert(Alert{Title: title, Description: n.Snippet})
}

// List returns a snapshot of the stored feed.
func (s *NotificationStore) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.items...)
}

// Len returns the stored feed length.
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear empties the feed ("mark all as read").
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// Remove deletes one entry by id; no-op if absent.
func (s *NotificationStore) Remove(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(append([]Notification(nil), s.items[:i]...), s.items[i+1:]...)
			return
		}
	}
}

// OnAlert registers a handler for transient user-facing alerts.
func (s *NotificationStore) OnAlert(fn AlertFunc) {
	s.alertMu.Lock()
	s.handlers = append(s.handlers, fn)
	s.alertMu.Unlock()
}

// Alert fans an alert out to every registered handler. Each call is isolated
// against panics so one bad handler cannot break the event path.
func (s *NotificationStore) Alert(a Alert) {
	s.alertMu.RLock()
	handlers := append([]AlertFunc(nil), s.handlers...)
	s.alertMu.RUnlock()
	for _, h := range handlers {
		h := h
		safeCall(func() { h(a) })
	}
}
