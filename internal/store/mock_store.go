// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	messages map[string]*Message // keyed by message ID
	order    map[string]int      // insertion sequence, for stable sorting
	seq      int

	// FailCreate, when set, is returned by Create. Lets tests exercise
	// persistence-failure paths.
	FailCreate error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		messages: make(map[string]*Message),
		order:    make(map[string]int),
	}
}

// Create stores a new message, assigning ID and CreatedAt if unset.
func (m *MockStore) Create(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		return m.FailCreate
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.State == "" {
		msg.State = StateSent
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}
	if msg.SecurityLevel == "" {
		msg.SecurityLevel = SecurityBasic
	}

	if _, ok := m.messages[msg.ID]; ok {
		return ErrDuplicateMessage
	}

	// Store a copy to avoid external modification
	m.messages[msg.ID] = copyMessage(msg)
	m.seq++
	m.order[msg.ID] = m.seq
	return nil
}

// Get retrieves a message by ID.
func (m *MockStore) Get(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

// Query returns messages matching the filter, newest first.
func (m *MockStore) Query(ctx context.Context, f Filter, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var matched []*Message
	for _, msg := range m.messages {
		if f.Sender != "" && msg.Sender != f.Sender {
			continue
		}
		if f.Recipient != "" && msg.Recipient != f.Recipient {
			continue
		}
		if f.ThreadID != "" && msg.ThreadID != f.ThreadID {
			continue
		}
		if f.State != "" && msg.State != f.State {
			continue
		}
		if f.Since != nil && msg.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && msg.CreatedAt.After(*f.Until) {
			continue
		}
		matched = append(matched, msg)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return m.order[matched[i].ID] > m.order[matched[j].ID]
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*Message, len(matched))
	for i, msg := range matched {
		result[i] = copyMessage(msg)
	}
	return result, nil
}

// UpdateState persists a lifecycle transition, stamping ReadAt or RepliedAt
// the first time the message reaches that state.
func (m *MockStore) UpdateState(ctx context.Context, id string, state State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return false, nil
	}

	msg.State = state
	now := time.Now()
	switch state {
	case StateRead:
		if msg.ReadAt == nil {
			msg.ReadAt = &now
		}
	case StateReplied:
		if msg.RepliedAt == nil {
			msg.RepliedAt = &now
		}
	}
	return true, nil
}

// Delete removes the given messages, but only those addressed to owner.
func (m *MockStore) Delete(ctx context.Context, owner string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		msg, ok := m.messages[id]
		if !ok || msg.Recipient != owner {
			continue
		}
		delete(m.messages, id)
		delete(m.order, id)
		deleted++
	}
	return deleted, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func copyMessage(msg *Message) *Message {
	c := *msg
	if msg.Metadata != nil {
		c.Metadata = make(map[string]string, len(msg.Metadata))
		for k, v := range msg.Metadata {
			c.Metadata[k] = v
		}
	}
	if msg.ReadAt != nil {
		t := *msg.ReadAt
		c.ReadAt = &t
	}
	if msg.RepliedAt != nil {
		t := *msg.RepliedAt
		c.RepliedAt = &t
	}
	return &c
}
