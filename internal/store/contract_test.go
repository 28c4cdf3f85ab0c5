package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/testutil"
)

// Every backend must pass the same contract.

func TestContract_CreateAssignsStoreFields(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, deterministic()...)
			ctx := context.Background()

			got, err := s.Create(ctx, claim.Claim{
				SubjectID:         "u1",
				Kind:              "signup",
				VerificationToken: "tx-1",
				Status:            claim.StatusConfirmed, // ignored
				RetryCount:        7,                     // ignored
			})
			require.NoError(t, err)

			assert.Equal(t, "claim-0001", got.ID)
			assert.Equal(t, claim.StatusUnconfirmed, got.Status)
			assert.Zero(t, got.RetryCount)
			assert.Equal(t, testutil.Epoch, got.CreatedAt)
			assert.Equal(t, testutil.Epoch, got.UpdatedAt)

			stored, err := s.Get(ctx, got.ID)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestContract_CreateRejectsInvalid(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			_, err := s.Create(context.Background(), claim.Claim{Kind: "signup"})
			require.Error(t, err)
			assert.True(t, claim.IsValidation(err))

			n := 0
			for range s.FindByStatus(context.Background(), claim.StatusUnconfirmed) {
				n++
			}
			assert.Zero(t, n, "nothing persisted")
		})
	}
}

func TestContract_DuplicateClaim(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, deterministic()...)
			ctx := context.Background()

			first, err := s.Create(ctx, claim.Claim{SubjectID: "u1", Kind: "signup", VerificationToken: "a"})
			require.NoError(t, err)

			_, err = s.Create(ctx, claim.Claim{SubjectID: "u1", Kind: "signup", VerificationToken: "b"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, claim.ErrDuplicate))

			var dup *claim.DuplicateError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, first.ID, dup.ExistingID)

			// Different kind for the same subject is a different claim.
			_, err = s.Create(ctx, claim.Claim{SubjectID: "u1", Kind: "referral"})
			assert.NoError(t, err)
		})
	}
}

func TestContract_DuplicateUsesNormalizedKey(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			_, err := s.Create(ctx, claim.Claim{SubjectID: "caf\u00e9", Kind: "signup"})
			require.NoError(t, err)
			_, err = s.Create(ctx, claim.Claim{SubjectID: "cafe\u0301 ", Kind: "signup"})
			assert.True(t, claim.IsDuplicate(err), "decomposed form must collide, got %v", err)
		})
	}
}

func TestContract_DuplicateAfterConfirmation(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			c, err := s.Create(ctx, claim.Claim{SubjectID: "u1", Kind: "signup", VerificationToken: "t"})
			require.NoError(t, err)
			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
			require.NoError(t, err)
			require.True(t, ok)

			_, err = s.Create(ctx, claim.Claim{SubjectID: "u1", Kind: "signup"})
			assert.True(t, claim.IsDuplicate(err))
		})
	}
}

func TestContract_GetNotFound(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			_, err := s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, claim.ErrNotFound)
		})
	}
}

func seed(t *testing.T, s ClaimStore, n int) []claim.Claim {
	t.Helper()
	var out []claim.Claim
	for i := 0; i < n; i++ {
		c, err := s.Create(context.Background(), claim.Claim{
			SubjectID:         fmt.Sprintf("u%d", i),
			Kind:              "signup",
			VerificationToken: fmt.Sprintf("tx-%d", i),
		})
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func collectIDs(t *testing.T, s ClaimStore, status claim.Status) []string {
	t.Helper()
	ids := []string{}
	for c, err := range s.FindByStatus(context.Background(), status) {
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	return ids
}

func TestContract_FindByStatusPagesInIDOrder(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, append(deterministic(), WithPageSize(2))...)
			seeded := seed(t, s, 5)

			var want []string
			for _, c := range seeded {
				want = append(want, c.ID)
			}
			assert.Equal(t, want, collectIDs(t, s, claim.StatusUnconfirmed))
			assert.Empty(t, collectIDs(t, s, claim.StatusConfirmed))

			// Restartable: a second range sees the same claims.
			assert.Equal(t, want, collectIDs(t, s, claim.StatusUnconfirmed))
		})
	}
}

func TestContract_FindByStatusAllowsWritesDuringIteration(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, append(deterministic(), WithPageSize(2))...)
			seed(t, s, 5)
			ctx := context.Background()

			visited := 0
			for c, err := range s.FindByStatus(ctx, claim.StatusUnconfirmed) {
				require.NoError(t, err)
				ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
				require.NoError(t, err)
				require.True(t, ok)
				visited++
			}

			assert.Equal(t, 5, visited, "no claim skipped")
			assert.Empty(t, collectIDs(t, s, claim.StatusUnconfirmed))
			assert.Len(t, collectIDs(t, s, claim.StatusConfirmed), 5)
		})
	}
}

func TestContract_FindByStatusStopsEarly(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, WithPageSize(2))
			seed(t, s, 5)

			n := 0
			for range s.FindByStatus(context.Background(), claim.StatusUnconfirmed) {
				n++
				if n == 3 {
					break
				}
			}
			assert.Equal(t, 3, n)
		})
	}
}

func TestContract_FindByStatusCancelled(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			seed(t, s, 2)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var gotErr error
			for _, err := range s.FindByStatus(ctx, claim.StatusUnconfirmed) {
				gotErr = err
			}
			assert.ErrorIs(t, gotErr, context.Canceled)
		})
	}
}

func TestContract_CompareAndUpdate(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := testutil.NewManualClock()
			s := b.open(t, WithClock(clock))
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			clock.Advance(time.Minute)
			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.RecordAttempt)
			require.NoError(t, err)
			require.True(t, ok)

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.RetryCount)
			assert.Equal(t, testutil.Epoch.Add(time.Minute), got.UpdatedAt)
			assert.Equal(t, c.CreatedAt, got.CreatedAt)

			// Wrong expected status: rejected, unchanged.
			ok, err = s.CompareAndUpdate(ctx, c.ID, claim.StatusConfirmed, claim.RecordAttempt)
			require.NoError(t, err)
			assert.False(t, ok)

			after, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, got, after)
		})
	}
}

func TestContract_CompareAndUpdateNotFound(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ok, err := s.CompareAndUpdate(context.Background(), "missing", claim.StatusUnconfirmed, claim.Confirm)
			assert.False(t, ok)
			assert.ErrorIs(t, err, claim.ErrNotFound)
		})
	}
}

func TestContract_CompareAndUpdateRejectsInvariantViolation(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, func(c *claim.Claim) {
				c.SubjectID = "someone-else"
			})
			assert.False(t, ok)
			assert.True(t, claim.IsTransition(err))

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
}

func TestContract_TokenCannotBeReplaced(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.WithToken("tx-other"))
			assert.False(t, ok)
			assert.True(t, claim.IsTransition(err))

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c.VerificationToken, got.VerificationToken)
		})
	}
}

// Once confirmed, no write is ever applied again and RetryCount is frozen.
func TestContract_ConfirmedIsFrozen(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.RecordAttempt)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
			require.NoError(t, err)
			require.True(t, ok)

			confirmed, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			require.Equal(t, claim.StatusConfirmed, confirmed.Status)
			assert.Equal(t, 1, confirmed.RetryCount)

			for _, expected := range []claim.Status{claim.StatusUnconfirmed, claim.StatusConfirmed} {
				ok, err := s.CompareAndUpdate(ctx, c.ID, expected, claim.RecordAttempt)
				require.NoError(t, err)
				assert.False(t, ok)
			}

			after, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, confirmed, after)
		})
	}
}

// Two writers read the claim as unconfirmed. One confirms; the other's
// write, computed from the stale read, must be rejected.
func TestContract_StaleWriteRejected(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.RecordAttempt)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, claim.StatusConfirmed, got.Status)
			assert.Zero(t, got.RetryCount)
		})
	}
}

func TestContract_ConcurrentConfirmAppliesOnce(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			var applied atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
					assert.NoError(t, err)
					if ok {
						applied.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), applied.Load())
		})
	}
}

func TestContract_ConcurrentAttemptsNotLost(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			c := seed(t, s, 1)[0]

			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.RecordAttempt)
					assert.NoError(t, err)
					assert.True(t, ok)
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, writers, got.RetryCount)
		})
	}
}
