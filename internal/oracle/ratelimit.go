package oracle

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited bounds the request rate to an upstream oracle.
//
// The engine bounds calls in flight; this bounds calls started per second.
// Waiting respects ctx, so a per-call timeout covers time queued here.
type RateLimited struct {
	next    Oracle
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of the given rate and burst.
func NewRateLimited(next Oracle, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) Check(ctx context.Context, token string) (Verdict, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", &Error{Token: token, Op: "ratelimit", Err: err}
	}
	return r.next.Check(ctx, token)
}
