// Package store persists claims for the reconciliation engine.
//
// Three backends implement ClaimStore with identical semantics:
//   - MemoryStore: mutex-guarded map, used by tests and the scenario harness
//   - SQLiteStore: durable storage in a single SQLite file
//   - BoltStore: durable storage in a BoltDB file
//
// # Conditional Writes
//
// Every mutation goes through CompareAndUpdate. The mutation is applied only if
// the stored status still equals the expected status, and the result is
// checked by claim.CheckTransition before it is persisted. A write computed
// from a stale read is rejected, never applied, which is what keeps two
// engines (or an engine and an API caller) from clobbering each other.
//
// # Lazy Scans
//
// FindByStatus returns an iter.Seq2 that pages through matching claims in ID
// order using keyset pagination ("id > last seen"). No transaction, lock or
// connection is held while the caller consumes a page, so the caller may
// write to the store from inside the loop. Ranging again restarts the scan.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as UTC RFC 3339 strings with nanoseconds.
package store
