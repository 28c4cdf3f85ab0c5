// Package harness runs reconciliation scenarios end to end.
//
// A scenario submits claims, scripts the oracle per verification token,
// runs a number of scans through the real engine and checks the final
// claim state. Everything runs against a MemoryStore, a ScriptedOracle and
// a stepping clock, so the same scenario always yields the same trace.
//
// # Scenario Format
//
//	name: retry_then_confirm
//	description: "Two oracle errors, then a confirmation"
//	concurrency_limit: 2
//	claims:
//	  - subject: u1
//	    kind: signup
//	    token: tx-a
//	oracle:
//	  tx-a: [error, error, confirmed]
//	scans: 4
//	attach:
//	  - after_scan: 1
//	    subject: u2
//	    kind: signup
//	    token: tx-late
//	expect:
//	  - subject: u1
//	    kind: signup
//	    status: confirmed
//	    retry_count: 2
//	    oracle_calls: 3
//
// Oracle outcomes are confirmed, pending, error and block. The last outcome
// of a script repeats; unscripted tokens answer pending.
//
// A claim step may set expect_error to "duplicate" or "invalid" when the
// submission must be rejected.
//
// # Golden Files
//
// RunWithGolden compares the JSON trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
