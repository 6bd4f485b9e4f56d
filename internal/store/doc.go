// Package store provides a document store on a single SQLite table.
//
// Documents are addressed by (partition, keyspace, id). Each carries a
// JSON payload (optionally sealed with AES-256-GCM), an optional absolute
// expiry, a last-write timestamp, an optional model/version tag and a set
// of filter attributes.
//
// # Visibility
//
// A document is visible iff its ttl column is NULL or not before the
// current epoch second. Expired documents are absent from every read even
// before the janitor deletes them.
//
// # Ordering
//
// Multi-row reads return documents oldest write first:
// ORDER BY "timestamp" ASC, rowid ASC. Scans page through the table on
// that key, so a document rewritten during a scan may be delivered again.
//
// # Failures
//
// Statements are retried on transient failures by internal/retry. Single
// document operations report success as a bool; batch reads skip rows
// that fail to decode and count them in a ScanReport.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
