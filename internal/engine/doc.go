// Package engine implements the reconciliation engine that converges
// Unconfirmed claims to Confirmed.
//
// ARCHITECTURE:
//
// Recurring Scan:
// Start launches one background goroutine. It runs a scan immediately and
// then one per ScanInterval tick. Scans never overlap inside one engine.
// Stop drains: no further claim is dispatched, but calls already in flight
// finish and their verdicts are written before Stop returns.
//
// Scan Flow:
//  1. Stream Unconfirmed claims from the store (lazy, paged)
//  2. Skip claims without a verification token
//  3. Check the rest against the oracle, at most ConcurrencyLimit at once,
//     each call bounded by CallTimeout
//  4. Record the verdict with a conditional write (CompareAndUpdate)
//
// Outcomes:
//   - Confirmed: status -> confirmed, RetryCount unchanged, notifier called
//   - NotYetConfirmed or oracle error: RetryCount + 1, stays unconfirmed
//   - Write rejected: another writer got there first; result discarded
//   - Call cancelled through RunOnce's context: result discarded, nothing written
//
// Failure Isolation:
// A failing oracle call only affects its own claim. A store error aborts the
// rest of the current scan and is reported as *ScanError; the next tick
// starts a fresh scan.
//
// Multiple Engines:
// The engine keeps no state between scans besides its lifecycle fields.
// Two engines sharing one store stay correct because every write is
// conditional on the status the engine read.
package engine
