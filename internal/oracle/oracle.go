// Package oracle defines the verification oracle the engine polls and the
// implementations selectable at construction.
//
// An oracle answers one question per call: is the transaction behind this
// verification token final? Implementations report transport failures,
// malformed responses and timeouts as *Error. The engine treats every error
// as "not yet confirmed" and tries again on a later scan.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Verdict is a successful oracle answer.
type Verdict string

const (
	Confirmed       Verdict = "confirmed"
	NotYetConfirmed Verdict = "not_yet_confirmed"
)

// Oracle verifies claims against an external authority.
//
// Check must honor ctx: when ctx is done it should return promptly with an
// error wrapping ctx.Err().
type Oracle interface {
	Check(ctx context.Context, token string) (Verdict, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, token string) (Verdict, error)

// Check calls f(ctx, token).
func (f Func) Check(ctx context.Context, token string) (Verdict, error) {
	return f(ctx, token)
}

// Error reports a failed oracle call.
type Error struct {
	Token string
	Op    string // "request", "status", "decode", "ratelimit", "scripted"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s for token %q: %v", e.Op, e.Token, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError returns true if err wraps an *Error.
func IsError(err error) bool {
	var oe *Error
	return errors.As(err, &oe)
}
