package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/logging"
)

// ContextManager maintains one sliding window of memory items per
// conversation.
//
// Windows are process-local and transient: a window is built lazily on
// first access and lives until cleared or the process exits. Calls for the
// same conversation id are serialized by a per-conversation mutex; calls
// for different ids never block each other.
type ContextManager struct {
	retriever  *Retriever
	windowSize int
	logger     *slog.Logger

	// mu guards the two maps below, not the windows themselves.
	mu       sync.Mutex
	contexts map[string]*ConversationContext
	locks    map[string]*sync.Mutex
}

// NewContextManager creates a context manager.
//
// Parameters:
//   - retriever: Ranking engine used to fetch conversation-scoped memories
//   - windowSize: Maximum items per conversation window; <=0 means default
//   - logger: Diagnostics sink; nil means discard
//
// Returns the manager, or an error if retriever is nil.
func NewContextManager(retriever *Retriever, windowSize int, logger *slog.Logger) (*ContextManager, error) {
	if retriever == nil {
		return nil, NewMemoryError("NewContextManager", fmt.Errorf("%w: retriever required", ErrValidation))
	}
	if windowSize <= 0 {
		windowSize = DefaultContextWindowSize
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &ContextManager{
		retriever:  retriever,
		windowSize: windowSize,
		logger:     logger,
		contexts:   make(map[string]*ConversationContext),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// GetContext returns the formatted context string for a conversation.
//
// A window is lazily initialized on first access. Fresh items relevant to
// the query and scoped to the conversation are retrieved, merged into the
// window (existing order kept, duplicates skipped), the window is truncated
// to its size, and the result is rendered for the LLM.
//
// Best-effort: retrieval failures degrade to rendering whatever the window
// already holds.
func (m *ContextManager) GetContext(ctx context.Context, conversationID, query string) string {
	lock := m.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	window := m.window(conversationID)

	fresh := m.retriever.RetrieveContext(ctx, query,
		WithLimit(m.windowSize),
		WithFilters(map[string]interface{}{
			"source_type": "conversation",
			"source_id":   conversationID,
		}),
	)

	window.Items = mergeContexts(window.Items, fresh, m.windowSize)
	window.UpdatedAt = time.Now()

	return m.retriever.FormatContextForLLM(window.Items, 0)
}

// UpdateContext merges externally supplied items into a conversation window
// without a fresh retrieval call.
func (m *ContextManager) UpdateContext(conversationID string, items []*MemoryItem) {
	lock := m.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	window := m.window(conversationID)
	window.Items = mergeContexts(window.Items, items, m.windowSize)
	window.UpdatedAt = time.Now()
}

// ClearContext removes a conversation window.
//
// The per-conversation mutex is acquired first and kept in the locks map
// afterwards, so clears serialize with in-flight calls for the same id and
// later calls reuse the same mutex instead of minting an unserialized one.
//
// Returns false when no window existed for the id.
func (m *ContextManager) ClearContext(conversationID string) bool {
	lock := m.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contexts[conversationID]; !ok {
		return false
	}
	delete(m.contexts, conversationID)
	return true
}

// WindowItems returns a copy of a conversation's current window.
//
// Returns nil when the conversation has no window.
func (m *ContextManager) WindowItems(conversationID string) []*MemoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	window, ok := m.contexts[conversationID]
	if !ok {
		return nil
	}
	items := make([]*MemoryItem, len(window.Items))
	copy(items, window.Items)
	return items
}

// conversationLock returns the mutex serializing operations on one
// conversation id, creating it on first use.
func (m *ContextManager) conversationLock(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[conversationID] = lock
	}
	return lock
}

// window returns the conversation's window, lazily initializing an empty
// one. Caller must hold the conversation lock.
func (m *ContextManager) window(conversationID string) *ConversationContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	window, ok := m.contexts[conversationID]
	if !ok {
		window = &ConversationContext{
			ConversationID: conversationID,
			UpdatedAt:      time.Now(),
		}
		m.contexts[conversationID] = window
	}
	return window
}

// mergeContexts merges fresh items into an existing window.
//
// Existing items keep their order; fresh items are appended only when their
// id is not already present (first-seen-wins). The merged window is then
// truncated to windowSize, so fresh items are silently dropped once the
// window is full before merge. This trades freshness for conversational
// stability and is relied on by callers.
func mergeContexts(existing, fresh []*MemoryItem, windowSize int) []*MemoryItem {
	seen := make(map[string]bool, len(existing)+len(fresh))
	merged := make([]*MemoryItem, 0, len(existing)+len(fresh))

	for _, item := range existing {
		if !seen[item.ID] {
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}
	for _, item := range fresh {
		if !seen[item.ID] {
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}

	return truncateItems(merged, windowSize)
}
