// Package dedupe provides a TTL cache keyed by idempotency tokens so a
// retried request can be answered with the result of its first attempt
// instead of being processed twice. Suppression is best effort within the
// configured window, not an exactly-once guarantee.
package dedupe
