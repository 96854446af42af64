package hireline

import (
	"sort"
	"sync"
)

// ConversationCache is the server-side conversation cache: it holds the
// conversations and message lists fetched over REST. The sync layer reads
// from it on every render and writes to it through exactly one primitive,
// ApplyOptimistic, which attaches a freshly merged view after reconciliation.
// It never deletes persisted messages on its own.
type ConversationCache struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
}

// NewConversationCache creates an empty cache.
func NewConversationCache() *ConversationCache {
	return &ConversationCache{conversations: make(map[string]Conversation)}
}

// Put stores server-fetched conversations, keyed by id.
func (c *ConversationCache) Put(convs []Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range convs {
		if conv.ID == "" {
			continue
		}
		c.conversations[conv.ID] = conv
	}
}

// PutMessages attaches a server-fetched message list to a cached
// conversation, creating the entry when the list is the first data seen
// for that id.
func (c *ConversationCache) PutMessages(conversationID string, msgs []Message) {
	if conversationID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.conversations[conversationID]
	conv.ID = conversationID
	conv.Messages = append([]Message(nil), msgs...)
	if n := len(conv.Messages); n > 0 {
		last := conv.Messages[n-1]
		conv.LastMessage = &last
		if conv.UpdatedAt.Before(last.CreatedAt) {
			conv.UpdatedAt = last.CreatedAt
		}
	}
	c.conversations[conversationID] = conv
}

// Get returns a cached conversation by id.
func (c *ConversationCache) Get(id string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[id]
	return conv, ok
}

// List returns all cached conversations, most recently updated first.
func (c *ConversationCache) List() []Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// ApplyOptimistic sets the cached entry for conv.ID to the reconciled view.
// This is the only write path the sync layer uses against the cache.
func (c *ConversationCache) ApplyOptimistic(conv Conversation) {
	if conv.ID == "" {
		return
	}
	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()
}

// Reset discards all cached state.
func (c *ConversationCache) Reset() {
	c.mu.Lock()
	c.conversations = make(map[string]Conversation)
	c.mu.Unlock()
}
