// ABOUTME: Message lifecycle transition table and predicates
// ABOUTME: Defines which state moves are legal and which states are terminal

package mailbox

import "github.com/2389/parley/internal/store"

// transitions lists the legal target states for each source state.
// Every non-terminal state may be ignored; replied and ignored accept nothing.
var transitions = map[store.State][]store.State{
	store.StateSent:    {store.StateArrived, store.StateIgnored},
	store.StateArrived: {store.StateRead, store.StateIgnored},
	store.StateRead:    {store.StateReplied, store.StateUnread, store.StateIgnored},
	store.StateUnread:  {store.StateRead, store.StateIgnored},
	store.StateReplied: nil,
	store.StateIgnored: nil,
}

// CanTransition reports whether moving between the two lifecycle states is legal.
func CanTransition(from, to store.State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state accepts no further transitions.
func IsTerminal(s store.State) bool {
	return s == store.StateReplied || s == store.StateIgnored
}
