package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/claimrecon/internal/claim"
)

// Submit validates a submission and creates the claim.
func Submit(ctx context.Context, s ClaimStore, sub claim.Submission) (claim.Claim, error) {
	c, err := sub.Claim()
	if err != nil {
		return claim.Claim{}, err
	}
	return s.Create(ctx, c)
}

// AttachToken supplies the verification token of an Unconfirmed claim that
// was created without one, and returns the updated record. Attaching the
// token the claim already holds is a no-op.
//
// Returns claim.ErrTokenAlreadySet if the claim holds a different token,
// claim.ErrAlreadyConfirmed if the claim is confirmed and claim.ErrNotFound
// if it does not exist.
func AttachToken(ctx context.Context, s ClaimStore, id, token string) (claim.Claim, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return claim.Claim{}, &claim.ValidationError{Field: "verificationToken", Reason: "is required"}
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return claim.Claim{}, err
	}
	switch {
	case current.Status.Terminal():
		return claim.Claim{}, claim.ErrAlreadyConfirmed
	case current.VerificationToken == token:
		return current, nil
	case current.VerificationToken != "":
		return claim.Claim{}, claim.ErrTokenAlreadySet
	}

	applied, err := s.CompareAndUpdate(ctx, id, claim.StatusUnconfirmed, claim.WithToken(token))
	if claim.IsTransition(err) {
		// Another caller attached a token since the read above.
		return claim.Claim{}, claim.ErrTokenAlreadySet
	}
	if err != nil {
		return claim.Claim{}, err
	}
	if !applied {
		// Rejected means the stored status is no longer unconfirmed.
		return claim.Claim{}, claim.ErrAlreadyConfirmed
	}
	return s.Get(ctx, id)
}

// List collects every claim with the given status. Returns an empty slice
// (not nil) when nothing matches.
func List(ctx context.Context, s ClaimStore, status claim.Status) ([]claim.Claim, error) {
	claims := []claim.Claim{}
	for c, err := range s.FindByStatus(ctx, status) {
		if err != nil {
			return nil, fmt.Errorf("list %s claims: %w", status, err)
		}
		claims = append(claims, c)
	}
	return claims, nil
}

// ListUnconfirmed returns all claims still awaiting confirmation.
func ListUnconfirmed(ctx context.Context, s ClaimStore) ([]claim.Claim, error) {
	return List(ctx, s, claim.StatusUnconfirmed)
}
