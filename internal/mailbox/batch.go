// ABOUTME: Batch entry points for mark-read and state updates
// ABOUTME: Bounded best-effort processing with per-id error reporting

package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/parley/internal/store"
)

// MaxBatchSize is the largest id list a batch operation accepts.
const MaxBatchSize = 1000

// ErrBatchEmpty is returned when a batch operation receives no ids
var ErrBatchEmpty = errors.New("batch is empty")

// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize ids
var ErrBatchTooLarge = errors.New("batch too large")

// BatchResult reports the outcome of a batch operation. Each id succeeds or
// fails on its own; Errors carries one entry per failed id.
type BatchResult struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// validateBatch rejects out-of-bounds id lists before any mutation happens.
func validateBatch(ids []string) error {
	if len(ids) == 0 {
		return ErrBatchEmpty
	}
	if len(ids) > MaxBatchSize {
		return fmt.Errorf("%d ids exceeds limit of %d: %w", len(ids), MaxBatchSize, ErrBatchTooLarge)
	}
	return nil
}

// BulkMarkRead marks up to MaxBatchSize messages read. A failure on one id is
// recorded and does not stop the rest of the batch.
func (s *Service) BulkMarkRead(ctx context.Context, ids []string) (*BatchResult, error) {
	if err := validateBatch(ids); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &BatchResult{Attempted: len(ids)}
	for _, id := range ids {
		if err := s.markReadBatchElement(ctx, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Succeeded++
	}

	s.logger.Debug("bulk mark read finished",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

// BulkUpdateState applies the same transition to up to MaxBatchSize messages,
// recording per-id failures without aborting the batch.
func (s *Service) BulkUpdateState(ctx context.Context, ids []string, state store.State) (*BatchResult, error) {
	if err := validateBatch(ids); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &BatchResult{Attempted: len(ids)}
	for _, id := range ids {
		err := s.updateStateBatchElement(ctx, id, state)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Succeeded++
	}

	s.logger.Debug("bulk state update finished",
		"to_state", string(state),
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

func (s *Service) markReadBatchElement(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("empty message id")
	}
	return s.markReadLocked(ctx, id)
}

func (s *Service) updateStateBatchElement(ctx context.Context, id string, state store.State) error {
	if id == "" {
		return errors.New("empty message id")
	}
	return s.updateStateLocked(ctx, id, state)
}
