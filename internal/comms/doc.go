// Package comms orchestrates agent messaging end to end.
//
// The Service owns the order of operations for every logical request: a
// send resolves its thread, encodes the body, persists the message, then
// updates the thread projection and presence. The store write comes first;
// everything after it is bookkeeping that can be reconstructed, so a crash
// mid-request never loses a message body.
//
// Replies route into the parent's thread, mark the parent replied, and feed
// the replier's response-time window. Receives decode bodies and advance
// sent messages to arrived as a delivery observation. Status syncs merge
// presence, identity validation, and performance metrics into one report,
// flagging interaction partners presence has never observed as ghosts.
//
// Agents only see their own mailboxes: acting on someone else's message
// reports it as missing rather than forbidden.
package comms
