package store

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/roach88/claimrecon/internal/claim"
)

// ClaimStore is the persistence contract the engine and the submission
// surfaces depend on.
type ClaimStore interface {
	// Create persists a new Unconfirmed claim, assigning its ID and timestamps.
	// Returns *claim.ValidationError for a missing subject or kind and
	// *claim.DuplicateError if a claim already exists for the pair.
	Create(ctx context.Context, c claim.Claim) (claim.Claim, error)

	// Get returns the claim with the given ID or claim.ErrNotFound.
	Get(ctx context.Context, id string) (claim.Claim, error)

	// FindByStatus lazily yields every claim with the given status in ID
	// order. The sequence is finite and may be ranged over more than once.
	FindByStatus(ctx context.Context, status claim.Status) iter.Seq2[claim.Claim, error]

	// CompareAndUpdate applies mutate to the stored claim only if its status
	// equals expected. It reports whether the write was applied.
	//
	// Returns (false, nil) if the precondition fails, (false, claim.ErrNotFound)
	// if the claim is missing and (false, *claim.TransitionError) if mutate
	// breaks a claim invariant.
	CompareAndUpdate(ctx context.Context, id string, expected claim.Status, mutate func(*claim.Claim)) (bool, error)

	// Close releases the backend's resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// DefaultPageSize is the number of claims fetched per FindByStatus page.
const DefaultPageSize = 256

// Option configures a store backend.
type Option func(*options)

type options struct {
	clock    claim.Clock
	ids      claim.IDGenerator
	pageSize int
}

func defaultOptions() options {
	return options{
		clock:    claim.SystemClock{},
		ids:      claim.UUIDv7Generator{},
		pageSize: DefaultPageSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func WithClock(c claim.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator sets the generator used for new claim IDs.
func WithIDGenerator(g claim.IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithPageSize sets how many claims FindByStatus fetches per page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// Open creates the backend named by driver. path is ignored for the memory driver.
func Open(driver, path string, opts ...Option) (ClaimStore, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path, opts...)
	case DriverBolt:
		return OpenBolt(path, opts...)
	case DriverMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want %s, %s or %s)", driver, DriverSQLite, DriverBolt, DriverMemory)
	}
}

// prepareCreate validates c and fills the fields the store owns. It returns
// the claim to persist and its dedup key.
func prepareCreate(c claim.Claim, o options) (claim.Claim, string, error) {
	sub := claim.Submission{
		SubjectID:         c.SubjectID,
		Kind:              c.Kind,
		VerificationToken: c.VerificationToken,
	}
	fresh, err := sub.Claim()
	if err != nil {
		return claim.Claim{}, "", err
	}

	now := o.clock.Now().UTC()
	fresh.ID = o.ids.NewID()
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	return fresh, claim.DedupKey(fresh.SubjectID, fresh.Kind), nil
}

// applyMutation is the shared compare-and-update rule. It returns the claim
// to persist and whether the write should happen.
func applyMutation(current claim.Claim, expected claim.Status, mutate func(*claim.Claim), now time.Time) (claim.Claim, bool, error) {
	if current.Status != expected || current.Status.Terminal() {
		return current, false, nil
	}

	next := current
	if mutate != nil {
		mutate(&next)
	}
	if err := claim.CheckTransition(current, next); err != nil {
		return current, false, err
	}
	next.UpdatedAt = now.UTC()
	return next, true, nil
}

// pager drives keyset pagination for FindByStatus. fetch returns up to limit
// claims with the given status and ID greater than after, in ID order.
func pager(ctx context.Context, pageSize int, fetch func(ctx context.Context, after string, limit int) ([]claim.Claim, error)) iter.Seq2[claim.Claim, error] {
	return func(yield func(claim.Claim, error) bool) {
		after := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(claim.Claim{}, err)
				return
			}
			page, err := fetch(ctx, after, pageSize)
			if err != nil {
				yield(claim.Claim{}, err)
				return
			}
			for _, c := range page {
				if !yield(c, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}
