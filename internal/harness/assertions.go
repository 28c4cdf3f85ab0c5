package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/claimrecon/internal/claim"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Expectation type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Claims   []ClaimSnapshot // Final claim state for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Claims) > 0 {
		fmt.Fprintf(&buf, "\nFinal claims:\n")
		for _, c := range e.Claims {
			fmt.Fprintf(&buf, "  %s %s/%s status=%s retry_count=%d oracle_calls=%d\n",
				c.ID, c.Subject, c.Kind, c.Status, c.RetryCount, c.OracleCalls)
		}
	}
	return buf.String()
}

// EvaluateExpectations checks the final state against the scenario.
// Returns a slice of error messages for failed expectations.
//
// Besides the explicit expect list, every run is checked for the
// concurrency cap.
func EvaluateExpectations(result *Result, scenario *Scenario) []string {
	var errs []string
	final := result.Final()

	limit := scenario.ConcurrencyLimit
	if limit == 0 {
		limit = DefaultConcurrencyLimit
	}
	if result.MaxInFlight > limit {
		errs = append(errs, (&AssertionError{
			Type:     "concurrency_limit",
			Expected: fmt.Sprintf("at most %d oracle calls in flight", limit),
			Actual:   fmt.Sprintf("%d in flight", result.MaxInFlight),
		}).Error())
	}

	for i, exp := range scenario.Expect {
		if err := checkExpectation(final, exp); err != nil {
			err.Type = fmt.Sprintf("expect[%d]", i)
			err.Claims = final
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func checkExpectation(final []ClaimSnapshot, exp Expectation) *AssertionError {
	c, ok := findSnapshot(final, exp.Subject, exp.Kind)
	if !ok {
		return &AssertionError{
			Expected: fmt.Sprintf("claim for %s/%s", exp.Subject, exp.Kind),
			Actual:   "no such claim",
		}
	}

	var mismatches []string
	if exp.Status != "" && exp.Status != c.Status {
		mismatches = append(mismatches, fmt.Sprintf("status=%s (want %s)", c.Status, exp.Status))
	}
	if exp.RetryCount != nil && *exp.RetryCount != c.RetryCount {
		mismatches = append(mismatches, fmt.Sprintf("retry_count=%d (want %d)", c.RetryCount, *exp.RetryCount))
	}
	if exp.OracleCalls != nil && *exp.OracleCalls != c.OracleCalls {
		mismatches = append(mismatches, fmt.Sprintf("oracle_calls=%d (want %d)", c.OracleCalls, *exp.OracleCalls))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Expected: fmt.Sprintf("%s/%s to match", exp.Subject, exp.Kind),
		Actual:   strings.Join(mismatches, ", "),
	}
}

// findSnapshot matches subject and kind the same way the store's
// duplicate check does.
func findSnapshot(claims []ClaimSnapshot, subject, kind string) (ClaimSnapshot, bool) {
	key := claim.DedupKey(subject, kind)
	for _, c := range claims {
		if claim.DedupKey(c.Subject, c.Kind) == key {
			return c, true
		}
	}
	return ClaimSnapshot{}, false
}
