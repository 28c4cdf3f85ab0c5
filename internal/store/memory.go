package store

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/claimrecon/internal/claim"
)

// MemoryStore is the reference ClaimStore: a map guarded by a mutex.
//
// It holds the same semantics as the durable backends and backs the
// scenario harness and most engine tests.
//
// Thread-safety: All methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	claims map[string]claim.Claim
	dedup  map[string]string
	opts   options
}

var _ ClaimStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		claims: make(map[string]claim.Claim),
		dedup:  make(map[string]string),
		opts:   buildOptions(opts),
	}
}

func (m *MemoryStore) Create(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	if err := ctx.Err(); err != nil {
		return claim.Claim{}, err
	}
	fresh, key, err := prepareCreate(c, m.opts)
	if err != nil {
		return claim.Claim{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.dedup[key]; ok {
		return claim.Claim{}, &claim.DuplicateError{SubjectID: fresh.SubjectID, Kind: fresh.Kind, ExistingID: existing}
	}
	m.claims[fresh.ID] = fresh
	m.dedup[key] = fresh.ID
	return fresh, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (claim.Claim, error) {
	if err := ctx.Err(); err != nil {
		return claim.Claim{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	if !ok {
		return claim.Claim{}, claim.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) FindByStatus(ctx context.Context, status claim.Status) iter.Seq2[claim.Claim, error] {
	return pager(ctx, m.opts.pageSize, func(_ context.Context, after string, limit int) ([]claim.Claim, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		var page []claim.Claim
		for _, c := range m.claims {
			if c.Status == status && c.ID > after {
				page = append(page, c)
			}
		}
		slices.SortFunc(page, func(a, b claim.Claim) int {
			return strings.Compare(a.ID, b.ID)
		})
		if len(page) > limit {
			page = page[:limit]
		}
		return page, nil
	})
}

func (m *MemoryStore) CompareAndUpdate(ctx context.Context, id string, expected claim.Status, mutate func(*claim.Claim)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.claims[id]
	if !ok {
		return false, claim.ErrNotFound
	}
	next, apply, err := applyMutation(current, expected, mutate, m.opts.clock.Now())
	if err != nil || !apply {
		return false, err
	}
	m.claims[id] = next
	return true, nil
}

// Len returns the number of stored claims.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.claims)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
