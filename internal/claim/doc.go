// Package claim defines the reward claim record reconciled by the engine.
//
// A claim asserts that a subject is owed something of a given kind. It is
// created Unconfirmed and converges to Confirmed once the verification
// oracle reports its token as final.
//
// # Invariants
//
//   - Status moves only Unconfirmed -> Confirmed; a Confirmed claim is immutable.
//   - RetryCount never decreases and only grows while Unconfirmed.
//   - ID, SubjectID, Kind and CreatedAt never change after creation.
//   - A claim without a verification token is never presented to the oracle.
//
// Every store backend enforces these through CheckTransition, so the rules live
// in one place regardless of where claims are persisted.
//
// # Identity
//
// Claim IDs are UUIDv7 strings (time-sortable). Duplicate detection uses
// DedupKey, a domain-separated SHA-256 over the NFC-normalized subject and kind.
package claim
