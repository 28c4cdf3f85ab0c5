package engine

import (
	"context"

	"github.com/roach88/claimrecon/internal/claim"
)

// Notifier is told about every confirmation the engine writes.
//
// Notification is best effort: errors are logged and never undo or retry
// the confirmation.
type Notifier interface {
	ClaimConfirmed(ctx context.Context, c claim.Claim) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, c claim.Claim) error

// ClaimConfirmed calls f(ctx, c).
func (f NotifierFunc) ClaimConfirmed(ctx context.Context, c claim.Claim) error {
	return f(ctx, c)
}

type nopNotifier struct{}

func (nopNotifier) ClaimConfirmed(context.Context, claim.Claim) error { return nil }
