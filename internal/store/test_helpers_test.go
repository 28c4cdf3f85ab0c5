package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/claimrecon/internal/testutil"
)

// backend names a ClaimStore constructor for the contract suite.
type backend struct {
	name string
	open func(t *testing.T, opts ...Option) ClaimStore
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, opts ...Option) ClaimStore {
			return NewMemoryStore(opts...)
		}},
		{"sqlite", func(t *testing.T, opts ...Option) ClaimStore {
			return createTestStore(t, opts...)
		}},
		{"bolt", func(t *testing.T, opts ...Option) ClaimStore {
			return createTestBolt(t, opts...)
		}},
	}
}

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path, opts...)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBolt creates a new Bolt store in a temp dir.
func createTestBolt(t *testing.T, opts ...Option) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bolt")
	s, err := OpenBolt(path, opts...)
	if err != nil {
		t.Fatalf("OpenBolt() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// deterministic returns options that pin IDs and timestamps.
func deterministic() []Option {
	return []Option{
		WithClock(testutil.NewManualClock()),
		WithIDGenerator(testutil.NewSequenceIDs("claim")),
	}
}
