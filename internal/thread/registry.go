// ABOUTME: In-memory registry of conversation threads with a per-agent index
// ABOUTME: Owns thread mutation, priority promotion, lifecycle moves, and stats

package thread

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrThreadNotFound indicates the specified thread was not found.
var ErrThreadNotFound = errors.New("thread not found")

// Registry holds every conversation thread for the process lifetime. Threads
// are never deleted; archival and closing are state changes. All compound
// mutations happen under one write lock, so a thread can never exist without
// its index entries.
type Registry struct {
	mu        sync.RWMutex
	threads   map[string]*Thread
	byAgent   map[string][]string // agent id -> thread ids, creation order
	byMessage map[string]string   // message id -> thread id
	order     []string            // thread ids in creation order
	logger    *slog.Logger
}

// NewRegistry creates an empty thread registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		threads:   make(map[string]*Thread),
		byAgent:   make(map[string][]string),
		byMessage: make(map[string]string),
		logger:    logger.With("component", "threads"),
	}
}

// Get returns a copy of the thread, or ErrThreadNotFound.
func (r *Registry) Get(id string) (*Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, ErrThreadNotFound)
	}
	return copyThread(t), nil
}

// AddMessage appends a projection to a thread, promotes the thread priority
// when the message outranks it, and bumps last activity. The message id is
// indexed so later replies can find their parent thread.
func (r *Registry) AddMessage(threadID string, ref MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, ErrThreadNotFound)
	}

	t.Messages = append(t.Messages, ref)
	r.byMessage[ref.ID] = threadID

	if incoming := ThreadPriority(ref.Priority); outranks(incoming, t.Priority) {
		r.logger.Debug("thread priority promoted",
			"thread_id", threadID,
			"from", string(t.Priority),
			"to", string(incoming))
		t.Priority = incoming
	}

	if ref.Timestamp.IsZero() {
		t.LastActivity = time.Now()
	} else {
		t.LastActivity = ref.Timestamp
	}
	return nil
}

// ThreadForMessage returns the id of the thread containing the message.
func (r *Registry) ThreadForMessage(messageID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byMessage[messageID]
	return id, ok
}

// AgentThreads returns copies of every thread the agent participates in,
// most recently active first.
func (r *Registry) AgentThreads(agentID string) []*Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAgent[agentID]
	threads := make([]*Thread, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.threads[id]; ok {
			threads = append(threads, copyThread(t))
		}
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastActivity.After(threads[j].LastActivity)
	})
	return threads
}

// ThreadMessages returns a page of a thread's projections, oldest first.
func (r *Registry) ThreadMessages(threadID string, limit, offset int) ([]MessageRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrThreadNotFound)
	}

	msgs := append([]MessageRef(nil), t.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return []MessageRef{}, nil
	}
	msgs = msgs[offset:]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Archive moves an active thread to archived. Returns false, without error,
// when the thread does not exist or has already left the active state.
func (r *Registry) Archive(id string) bool {
	return r.setState(id, StateArchived)
}

// Close moves an active thread to closed. Returns false, without error, when
// the thread does not exist or has already left the active state.
func (r *Registry) Close(id string) bool {
	return r.setState(id, StateClosed)
}

func (r *Registry) setState(id string, state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[id]
	if !ok || t.State != StateActive {
		return false
	}
	t.State = state
	r.logger.Info("thread state changed", "thread_id", id, "state", string(state))
	return true
}

// Stats aggregates over every thread with a full scan. Computed on demand;
// result sets stay bounded by process-local scale.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	s.TotalThreads = len(r.threads)
	for _, t := range r.threads {
		switch t.State {
		case StateActive:
			s.ActiveThreads++
		case StateArchived:
			s.ArchivedThreads++
		case StateClosed:
			s.ClosedThreads++
		}
		s.TotalMessages += len(t.Messages)
	}
	return s
}

// FindOrCreate scans active threads with exactly the given participants in
// creation order and returns the first one accepted by match. When nothing
// matches, the thread built by create is registered and returned. Scan,
// creation, and index registration happen under one lock; match must not
// call back into the registry.
func (r *Registry) FindOrCreate(participants []string, match func(*Thread) bool, create func() *Thread) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		t := r.threads[id]
		if t.State != StateActive {
			continue
		}
		if !participantsEqual(t.Participants, participants) {
			continue
		}
		if match(t) {
			return t.ID, false
		}
	}

	t := create()
	r.registerLocked(t)
	r.logger.Info("thread created",
		"thread_id", t.ID,
		"participants", t.Participants,
		"subject", t.Subject)
	return t.ID, true
}

// register inserts a new thread and its index entries. Caller holds the
// write lock.
func (r *Registry) registerLocked(t *Thread) {
	r.threads[t.ID] = t
	r.order = append(r.order, t.ID)
	for _, p := range t.Participants {
		r.byAgent[p] = append(r.byAgent[p], t.ID)
	}
}

func participantsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
