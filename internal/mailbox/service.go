// ABOUTME: Service applies lifecycle transitions to messages and maintains mailboxes
// ABOUTME: Validates every move against the transition table before persisting

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/parley/internal/store"
)

// ErrMessageNotFound is returned when a transition targets an unknown message
var ErrMessageNotFound = errors.New("message not found")

// ErrInvalidStateTransition is returned when a lifecycle move is not in the table
var ErrInvalidStateTransition = errors.New("invalid state transition")

// emptyPageSize bounds how many messages one EmptyMailbox iteration loads.
const emptyPageSize = 500

// MessageStore defines what the state machine needs from storage
type MessageStore interface {
	Get(ctx context.Context, id string) (*store.Message, error)
	Query(ctx context.Context, f store.Filter, limit int) ([]*store.Message, error)
	UpdateState(ctx context.Context, id string, state store.State) (bool, error)
	Delete(ctx context.Context, owner string, ids []string) (int, error)
}

// Service validates and applies message lifecycle transitions. The
// check-then-persist sequence for one message completes before the next
// begins; callers never observe a half-applied transition.
type Service struct {
	store  MessageStore
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a new mailbox Service.
func New(st MessageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "mailbox"),
	}
}

// MarkRead advances a message to the read state. A message still in sent
// passes through arrived on the way; only the final state is persisted.
// Marking an already-read message is a no-op.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReadLocked(ctx, id)
}

func (s *Service) markReadLocked(ctx context.Context, id string) error {
	msg, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading message %s: %w", id, err)
	}

	if msg.State == store.StateRead {
		return nil
	}
	if IsTerminal(msg.State) {
		return fmt.Errorf("message %s is %s: %w", id, msg.State, ErrInvalidStateTransition)
	}

	ok, err := s.store.UpdateState(ctx, id, store.StateRead)
	if err != nil {
		return fmt.Errorf("persisting read state for %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}

	s.logger.Debug("message read", "message_id", id, "from_state", string(msg.State))
	return nil
}

// MarkReplied advances a message to the replied state, passing through
// arrived and read as needed; only the final state is persisted. Marking an
// already-replied message is a no-op. Ignored messages accept nothing.
func (s *Service) MarkReplied(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markRepliedLocked(ctx, id)
}

func (s *Service) markRepliedLocked(ctx context.Context, id string) error {
	msg, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading message %s: %w", id, err)
	}

	if msg.State == store.StateReplied {
		return nil
	}
	if IsTerminal(msg.State) {
		return fmt.Errorf("message %s is %s: %w", id, msg.State, ErrInvalidStateTransition)
	}

	ok, err := s.store.UpdateState(ctx, id, store.StateReplied)
	if err != nil {
		return fmt.Errorf("persisting replied state for %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}

	s.logger.Debug("message replied", "message_id", id, "from_state", string(msg.State))
	return nil
}

// UpdateState applies a single-step lifecycle transition after validating it
// against the transition table.
func (s *Service) UpdateState(ctx context.Context, id string, state store.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStateLocked(ctx, id, state)
}

func (s *Service) updateStateLocked(ctx context.Context, id string, state store.State) error {
	msg, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading message %s: %w", id, err)
	}

	if !CanTransition(msg.State, state) {
		return fmt.Errorf("message %s: %s -> %s: %w", id, msg.State, state, ErrInvalidStateTransition)
	}

	ok, err := s.store.UpdateState(ctx, id, state)
	if err != nil {
		return fmt.Errorf("persisting state for %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}

	s.logger.Debug("message state updated",
		"message_id", id,
		"from_state", string(msg.State),
		"to_state", string(state))
	return nil
}

// DeleteMessages removes the given messages from an owner's mailbox. IDs that
// do not exist or belong to someone else are skipped, not errored. Returns
// the number actually removed.
func (s *Service) DeleteMessages(ctx context.Context, owner string, ids []string) (int, error) {
	n, err := s.store.Delete(ctx, owner, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting messages for %s: %w", owner, err)
	}
	s.logger.Debug("messages deleted", "owner", owner, "requested", len(ids), "deleted", n)
	return n, nil
}

// EmptyMailbox deletes every message addressed to the owner, or only the ones
// matching the filter when one is supplied. The filter's recipient is always
// forced to the owner. Returns the number removed.
func (s *Service) EmptyMailbox(ctx context.Context, owner string, f store.Filter) (int, error) {
	f.Recipient = owner

	deleted := 0
	for {
		msgs, err := s.store.Query(ctx, f, emptyPageSize)
		if err != nil {
			return deleted, fmt.Errorf("listing mailbox for %s: %w", owner, err)
		}
		if len(msgs) == 0 {
			break
		}

		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		n, err := s.store.Delete(ctx, owner, ids)
		if err != nil {
			return deleted, fmt.Errorf("emptying mailbox for %s: %w", owner, err)
		}
		deleted += n
		if n == 0 {
			break
		}
	}

	s.logger.Info("mailbox emptied", "owner", owner, "deleted", deleted)
	return deleted, nil
}
