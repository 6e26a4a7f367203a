// Package store provides persistent storage for agent messages using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface. Callers that own lifecycle
// rules (the mailbox state machine) validate transitions before calling
// UpdateState; the store persists whatever it is told and stamps ReadAt and
// RepliedAt the first time a message reaches the read or replied state.
//
// # Data Model
//
// Message is the one record the store owns. Content is opaque: when a
// security level requires encoding, the envelope package has already sealed
// the body before it arrives here.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 UTC strings.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested message does not exist
//   - ErrDuplicateMessage: Message ID already exists
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
