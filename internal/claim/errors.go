package claim

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no claim exists for an ID.
	ErrNotFound = errors.New("claim not found")

	// ErrDuplicate matches every *DuplicateError via errors.Is.
	ErrDuplicate = errors.New("duplicate claim")

	// ErrAlreadyConfirmed is returned when a caller tries to change a confirmed claim.
	ErrAlreadyConfirmed = errors.New("claim already confirmed")

	// ErrTokenAlreadySet is returned when a caller tries to replace a
	// verification token. A token can only be supplied once.
	ErrTokenAlreadySet = errors.New("verification token already set")
)

// ValidationError reports a malformed submission. It is raised before the
// claim reaches any store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid claim: %s %s", e.Field, e.Reason)
}

// DuplicateError reports that a claim already exists for the same subject
// and kind. Creation is rejected synchronously.
type DuplicateError struct {
	SubjectID  string
	Kind       string
	ExistingID string
}

func (e *DuplicateError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("duplicate claim for subject %q kind %q (existing %s)", e.SubjectID, e.Kind, e.ExistingID)
	}
	return fmt.Sprintf("duplicate claim for subject %q kind %q", e.SubjectID, e.Kind)
}

// Is makes errors.Is(err, ErrDuplicate) true for any DuplicateError.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// TransitionError reports a mutation that would break a claim invariant.
type TransitionError struct {
	ClaimID string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for claim %s: %s", e.ClaimID, e.Reason)
}

// IsValidation returns true if err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDuplicate returns true if err wraps a *DuplicateError.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsTransition returns true if err wraps a *TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
