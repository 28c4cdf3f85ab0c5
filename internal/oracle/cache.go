package oracle

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached remembers Confirmed verdicts so a claim whose confirmation write
// failed or was lost is not re-verified upstream on the next scan.
//
// Only Confirmed is cached, since it is terminal upstream.
type Cached struct {
	next  Oracle
	cache *gocache.Cache
}

// NewCached wraps next with a cache whose entries expire after ttl.
func NewCached(next Oracle, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Check(ctx context.Context, token string) (Verdict, error) {
	if _, ok := c.cache.Get(token); ok {
		return Confirmed, nil
	}
	v, err := c.next.Check(ctx, token)
	if err == nil && v == Confirmed {
		c.cache.SetDefault(token, struct{}{})
	}
	return v, err
}

// Len returns the number of cached verdicts.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
