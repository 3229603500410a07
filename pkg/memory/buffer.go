package memory

import (
	"sync"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one remembered message
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationBuffer is an in-memory chat history bound to a fixed key
type ConversationBuffer struct {
	key string

	mu      sync.RWMutex
	entries []Entry
}

// NewConversationBuffer creates an empty buffer stored under key
func NewConversationBuffer(key string) *ConversationBuffer {
	return &ConversationBuffer{key: key}
}

// Key returns the name the history is stored under
func (b *ConversationBuffer) Key() string {
	return b.key
}

// SaveContext records one completed exchange
func (b *ConversationBuffer) SaveContext(input, output string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries,
		Entry{Role: RoleUser, Content: input},
		Entry{Role: RoleAssistant, Content: output},
	)
}

// Load returns a copy of the remembered entries, oldest first
func (b *ConversationBuffer) Load() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of remembered entries
func (b *ConversationBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
