// ABOUTME: Thread and message projection types for conversation grouping
// ABOUTME: Defines thread lifecycle states and the three-tier thread priority

package thread

import (
	"sort"
	"time"

	"github.com/2389/parley/internal/store"
)

// State is the lifecycle state of a thread. Active threads accept new
// messages; archived and closed are terminal.
type State string

const (
	StateActive   State = "active"
	StateArchived State = "archived"
	StateClosed   State = "closed"
)

// MessageRef is the lightweight projection of a message kept inside a
// thread. Full bodies live in the message store only.
type MessageRef struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject"`
	Timestamp time.Time      `json:"timestamp"`
	State     store.State    `json:"state"`
	Priority  store.Priority `json:"priority"`
	ReplyTo   string         `json:"reply_to,omitempty"`
}

// Thread groups the messages between a fixed participant pair. Participants
// are immutable after creation; archival is a state change, never removal.
type Thread struct {
	ID           string
	Participants []string
	Subject      string
	Priority     store.Priority
	State        State
	CreatedAt    time.Time
	LastActivity time.Time
	Messages     []MessageRef
}

// Stats is an on-demand aggregate over every thread in the registry.
type Stats struct {
	TotalThreads    int `json:"total_threads"`
	ActiveThreads   int `json:"active_threads"`
	ArchivedThreads int `json:"archived_threads"`
	ClosedThreads   int `json:"closed_threads"`
	TotalMessages   int `json:"total_messages"`
}

// ParticipantKey returns the canonical sorted pair for two agent ids.
func ParticipantKey(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// priorityTier ranks priorities for thread promotion under low < normal <
// high. Messages also allow urgent; threads carry only three levels, so
// urgent shares the high tier.
var priorityTier = map[store.Priority]int{
	store.PriorityLow:    0,
	store.PriorityNormal: 1,
	store.PriorityHigh:   2,
	store.PriorityUrgent: 2,
}

// ThreadPriority maps a message priority onto the three-tier thread scale.
func ThreadPriority(p store.Priority) store.Priority {
	if p == store.PriorityUrgent {
		return store.PriorityHigh
	}
	if _, ok := priorityTier[p]; !ok {
		return store.PriorityNormal
	}
	return p
}

// outranks reports whether message priority p beats thread priority q on the
// three-tier scale.
func outranks(p, q store.Priority) bool {
	return priorityTier[p] > priorityTier[q]
}

func copyThread(t *Thread) *Thread {
	c := *t
	c.Participants = append([]string(nil), t.Participants...)
	c.Messages = append([]MessageRef(nil), t.Messages...)
	return &c
}
