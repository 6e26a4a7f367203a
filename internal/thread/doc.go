// Package thread groups agent messages into conversation threads.
//
// # Resolution
//
// The Resolver decides where a message belongs, in this order:
//
//  1. A reply (reply-to id set) goes to the thread containing its parent,
//     bypassing all matching. An unindexed parent falls through to step 2.
//  2. Active threads whose participant pair equals the sorted
//     {sender, recipient} set are scanned oldest first.
//  3. A candidate matches when one normalized subject contains the other,
//     or when shared tokens cover at least half of the shorter subject's
//     token count. Normalization lowercases, strips a leading "re:", and
//     trims whitespace.
//  4. The first match wins. No match creates a new thread registered under
//     both participants in the same locked step.
//
// # Priority
//
// Threads carry three priority tiers (low, normal, high). Messages also
// allow urgent, which maps onto the high tier. Appending a message promotes
// the thread when the message outranks it; priority never demotes.
//
// # Lifecycle
//
// Threads are active, archived, or closed. Archived and closed are terminal
// and excluded from resolution. Threads are never deleted.
package thread
