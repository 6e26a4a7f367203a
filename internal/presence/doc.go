// Package presence tracks agent liveness, identity drift, and performance.
//
// A Monitor keeps one record per agent, created lazily on first mention and
// retained for the life of the process. Records hold bounded FIFO sample
// windows (response times, activity timestamps, errors, identity
// fingerprints, consistency scores); everything derived from them such as
// average response time, uptime, throughput, and identity stability is
// recomputed from the current window contents on every read.
//
// # Sessions
//
// MarkOnline binds a session token and expiry to an agent. A periodic
// CleanupExpiredSessions sweep flips agents whose expiry has passed back
// offline. Going offline clears the session but never discards history.
//
// # Identity drift
//
// Each identity-relevant status update is fingerprinted over the agent's
// claimed role, capabilities, and workspace. The fraction of adjacent equal
// fingerprints in the bounded history scores how consistent the claims are:
// below 0.7 flags drift, above 0.5 counts as valid, and the overlap between
// those bands is deliberate.
package presence
