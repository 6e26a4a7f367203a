// Package mailbox owns the message lifecycle state machine.
//
// States move sent -> arrived -> read -> replied, with read <-> unread for
// inbox management and any non-terminal state allowed to become ignored.
// Replied and ignored are terminal. Batch entry points accept between 1 and
// 1000 ids, reject out-of-bounds batches before touching anything, and
// otherwise process each id independently, reporting per-id failures.
package mailbox
