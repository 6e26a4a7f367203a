// ABOUTME: Store interface and data types for parley message persistence
// ABOUTME: Defines the Message record, lifecycle states, and the Store interface

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateMessage is returned when trying to create a message with an ID
// that already exists
var ErrDuplicateMessage = errors.New("message already exists")

// State is the delivery lifecycle state of a message.
type State string

// Message lifecycle states. Sent is the only creation state; Replied and
// Ignored are terminal.
const (
	StateSent    State = "sent"
	StateArrived State = "arrived"
	StateRead    State = "read"
	StateReplied State = "replied"
	StateIgnored State = "ignored"
	StateUnread  State = "unread"
)

// ParseState converts a wire string into a State, case-insensitively.
func ParseState(s string) (State, bool) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StateSent, StateArrived, StateRead, StateReplied, StateIgnored, StateUnread:
		return st, true
	}
	return "", false
}

// Priority is the sender-declared urgency of a message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority converts a wire string into a Priority, case-insensitively.
// The empty string parses as normal.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityNormal, true
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, true
	}
	return "", false
}

// SecurityLevel selects how a message body is encoded in transit and at rest.
type SecurityLevel string

const (
	SecurityNone      SecurityLevel = "none"
	SecurityBasic     SecurityLevel = "basic"
	SecuritySigned    SecurityLevel = "signed"
	SecurityEncrypted SecurityLevel = "encrypted"
)

// ParseSecurityLevel converts a wire string into a SecurityLevel,
// case-insensitively. The empty string parses as basic.
func ParseSecurityLevel(s string) (SecurityLevel, bool) {
	l := SecurityLevel(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case "":
		return SecurityBasic, true
	case SecurityNone, SecurityBasic, SecuritySigned, SecurityEncrypted:
		return l, true
	}
	return "", false
}

// Message is one agent-to-agent message. Content holds the envelope-encoded
// body when SecurityLevel requires encoding; the store never inspects it.
type Message struct {
	ID            string
	ThreadID      string
	Sender        string
	Recipient     string
	Subject       string
	Content       string
	Priority      Priority
	State         State
	SecurityLevel SecurityLevel
	ReplyTo       string
	RequiresReply bool
	Metadata      map[string]string
	CreatedAt     time.Time
	ReadAt        *time.Time
	RepliedAt     *time.Time
}

// Filter narrows a Query. Zero-valued fields are ignored.
type Filter struct {
	Sender    string
	Recipient string
	ThreadID  string
	State     State
	Since     *time.Time
	Until     *time.Time
}

// Store defines the interface for message persistence. Implementations
// stamp ReadAt/RepliedAt when UpdateState lands on read or replied.
type Store interface {
	// Create persists a new message, assigning ID and CreatedAt if unset.
	Create(ctx context.Context, msg *Message) error

	// Get returns a message by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Message, error)

	// Query returns messages matching the filter, newest first.
	Query(ctx context.Context, f Filter, limit int) ([]*Message, error)

	// UpdateState persists a lifecycle transition. Returns false when the
	// message does not exist. Transition legality is the caller's concern.
	UpdateState(ctx context.Context, id string, state State) (bool, error)

	// Delete removes the given messages, but only those addressed to owner.
	// Unknown IDs and messages addressed elsewhere are skipped silently.
	// Returns the number of rows actually deleted.
	Delete(ctx context.Context, owner string, ids []string) (int, error)

	// Close releases any resources held by the store
	Close() error
}
