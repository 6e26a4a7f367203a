// ABOUTME: Resolver decides which thread a new message belongs to
// ABOUTME: Reply linkage wins, then participant match plus subject similarity

package thread

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/store"
)

// Resolver routes messages to threads. A reply stays in its parent's thread
// no matter what its subject says; everything else is matched by participant
// pair and subject similarity against active threads, oldest first.
type Resolver struct {
	threads *Registry
	logger  *slog.Logger
}

// NewResolver creates a Resolver over the given registry.
func NewResolver(threads *Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		threads: threads,
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve returns the id of the thread the message belongs to, creating and
// indexing a new thread when no active one matches.
func (r *Resolver) Resolve(from, to, subject string, priority store.Priority, replyTo string) (string, error) {
	if from == "" {
		return "", fmt.Errorf("sender is required")
	}
	if to == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if from == to {
		return "", fmt.Errorf("sender and recipient must differ")
	}

	if replyTo != "" {
		if id, ok := r.threads.ThreadForMessage(replyTo); ok {
			return id, nil
		}
		// Unknown parent: fall through to participant matching
		r.logger.Debug("reply parent not indexed, matching by participants",
			"reply_to", replyTo)
	}

	key := ParticipantKey(from, to)
	id, created := r.threads.FindOrCreate(key,
		func(t *Thread) bool {
			return subjectsMatch(t.Subject, subject)
		},
		func() *Thread {
			now := time.Now()
			return &Thread{
				ID:           uuid.New().String(),
				Participants: key,
				Subject:      subject,
				Priority:     ThreadPriority(priority),
				State:        StateActive,
				CreatedAt:    now,
				LastActivity: now,
			}
		})

	if !created {
		r.logger.Debug("message resolved to existing thread",
			"thread_id", id,
			"subject", subject)
	}
	return id, nil
}

// normalizeSubject lowercases, strips one leading "re:" token, and trims.
func normalizeSubject(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimPrefix(s, "re:"))
	return s
}

// subjectsMatch applies the similarity heuristic: containment of one
// normalized subject in the other, or shared tokens covering at least half
// of the shorter subject's token count.
func subjectsMatch(a, b string) bool {
	na, nb := normalizeSubject(a), normalizeSubject(b)
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ta, tb := strings.Fields(na), strings.Fields(nb)
	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	if shorter == 0 {
		return false
	}

	seen := make(map[string]bool, len(ta))
	for _, tok := range ta {
		seen[tok] = true
	}
	common := 0
	counted := make(map[string]bool, len(tb))
	for _, tok := range tb {
		if seen[tok] && !counted[tok] {
			common++
			counted[tok] = true
		}
	}

	return 2*common >= shorter
}
