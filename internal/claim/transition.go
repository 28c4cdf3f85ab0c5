package claim

import "fmt"

// CheckTransition validates that after is a legal successor of before.
//
// It does not look at UpdatedAt, which the store refreshes on every applied
// mutation.
func CheckTransition(before, after Claim) error {
	fail := func(format string, args ...any) error {
		return &TransitionError{ClaimID: before.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if before.Status.Terminal() {
		return fail("%s claim is immutable", before.Status)
	}
	if after.ID != before.ID {
		return fail("id is immutable")
	}
	if after.SubjectID != before.SubjectID {
		return fail("subject is immutable")
	}
	if after.Kind != before.Kind {
		return fail("kind is immutable")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		return fail("created_at is immutable")
	}
	if before.VerificationToken != "" && after.VerificationToken != before.VerificationToken {
		return fail("verification token is immutable once set")
	}
	if !after.Status.Valid() {
		return fail("unknown status %q", after.Status)
	}
	if after.RetryCount < before.RetryCount {
		return fail("retry count decreased from %d to %d", before.RetryCount, after.RetryCount)
	}
	if after.Status != StatusUnconfirmed && after.RetryCount != before.RetryCount {
		return fail("retry count may only change while %s", StatusUnconfirmed)
	}
	return nil
}

// Confirm marks a claim confirmed. RetryCount is left unchanged.
func Confirm(c *Claim) {
	c.Status = StatusConfirmed
}

// RecordAttempt counts one failed or inconclusive verification attempt.
func RecordAttempt(c *Claim) {
	c.RetryCount++
}

// WithToken returns a mutation that sets the verification token.
func WithToken(token string) func(*Claim) {
	return func(c *Claim) {
		c.VerificationToken = token
	}
}
