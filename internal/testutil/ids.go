package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates claim IDs "<prefix>-0001", "<prefix>-0002", ...
//
// The zero padding keeps lexicographic order equal to creation order, which
// is what stores rely on when paging by ID. This enables deterministic test
// execution and golden snapshot comparison.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. If prefix is empty, "claim" is used.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "claim"
	}
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next ID in the sequence.
//
// Implements claim.IDGenerator interface.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence. The next call to NewID() returns "<prefix>-0001".
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
