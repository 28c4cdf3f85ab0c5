package claim

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status is the reconciliation state of a claim.
type Status string

const (
	// StatusUnconfirmed means the oracle has not yet reported the claim as final.
	StatusUnconfirmed Status = "unconfirmed"

	// StatusConfirmed is terminal. No further mutation is permitted.
	StatusConfirmed Status = "confirmed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusUnconfirmed || s == StatusConfirmed
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("must be %q or %q", StatusUnconfirmed, StatusConfirmed)}
	}
	return s, nil
}

// Claim is the unit of reconciliation.
type Claim struct {
	ID                string    `json:"id"`
	SubjectID         string    `json:"subjectId"`
	Kind              string    `json:"claimKind"`
	VerificationToken string    `json:"verificationToken,omitempty"`
	Status            Status    `json:"status"`
	RetryCount        int       `json:"retryCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Eligible reports whether the engine should present the claim to the oracle.
func (c Claim) Eligible() bool {
	return c.Status == StatusUnconfirmed && c.VerificationToken != ""
}

// Submission is the payload accepted by the claim submission surfaces.
type Submission struct {
	SubjectID         string `json:"subjectId" validate:"required"`
	Kind              string `json:"claimKind" validate:"required"`
	VerificationToken string `json:"verificationToken"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so errors match what the caller sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Normalize trims surrounding whitespace from every field.
func (s Submission) Normalize() Submission {
	return Submission{
		SubjectID:         strings.TrimSpace(s.SubjectID),
		Kind:              strings.TrimSpace(s.Kind),
		VerificationToken: strings.TrimSpace(s.VerificationToken),
	}
}

// Validate returns a *ValidationError describing the first missing field.
func (s Submission) Validate() error {
	err := validate.Struct(s.Normalize())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: verrs[0].Field(), Reason: "is " + verrs[0].Tag()}
	}
	return fmt.Errorf("validate submission: %w", err)
}

// Claim converts a valid submission into a new Unconfirmed claim. ID and
// timestamps are left for the store to assign.
func (s Submission) Claim() (Claim, error) {
	if err := s.Validate(); err != nil {
		return Claim{}, err
	}
	n := s.Normalize()
	return Claim{
		SubjectID:         n.SubjectID,
		Kind:              n.Kind,
		VerificationToken: n.VerificationToken,
		Status:            StatusUnconfirmed,
	}, nil
}
