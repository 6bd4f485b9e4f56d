// Package retry runs SQL statements against a backend, re-attempting them
// when the failure is transient.
//
// A failure is transient when it looks like a dropped connection, a
// timeout, lock contention, or a serialization conflict. Everything else,
// including context cancellation, is returned on the first attempt.
//
// Delays grow exponentially from Policy.BaseDelay, are capped at
// Policy.MaxDelay and carry up to Policy.JitterFactor of random jitter.
// Statements must be idempotent: a statement that failed transiently may
// have been applied before the failure was observed.
package retry
