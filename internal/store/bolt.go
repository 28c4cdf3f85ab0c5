package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/boltdb/bolt"

	"github.com/roach88/claimrecon/internal/claim"
)

var (
	bucketClaims   = []byte("claims")    // id -> record JSON
	bucketDedup    = []byte("dedup")     // dedup key -> id
	bucketByStatus = []byte("by_status") // status 0x00 id -> empty
)

// errDuplicate carries the existing ID out of a bolt transaction.
var errDuplicate = errors.New("duplicate dedup key")

// BoltStore is the durable ClaimStore backed by a BoltDB file.
//
// Bolt allows a single writer at a time, so every CompareAndUpdate runs as
// one Update transaction and is serialized with all other writes.
type BoltStore struct {
	db   *bolt.DB
	opts options
}

var _ ClaimStore = (*BoltStore)(nil)

// OpenBolt creates or opens a BoltDB file at path and ensures the buckets exist.
func OpenBolt(path string, opts ...Option) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open bolt store: path is required")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketClaims, bucketDedup, bucketByStatus} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	return &BoltStore{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func statusKey(status claim.Status, id string) []byte {
	key := make([]byte, 0, len(status)+1+len(id))
	key = append(key, status...)
	key = append(key, 0x00)
	return append(key, id...)
}

func (b *BoltStore) Create(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	if err := ctx.Err(); err != nil {
		return claim.Claim{}, err
	}
	fresh, key, err := prepareCreate(c, b.opts)
	if err != nil {
		return claim.Claim{}, err
	}
	data, err := marshalRecord(fresh)
	if err != nil {
		return claim.Claim{}, err
	}

	var existing string
	err = b.db.Update(func(tx *bolt.Tx) error {
		dedup := tx.Bucket(bucketDedup)
		if id := dedup.Get([]byte(key)); id != nil {
			existing = string(id)
			return errDuplicate
		}
		if err := tx.Bucket(bucketClaims).Put([]byte(fresh.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByStatus).Put(statusKey(fresh.Status, fresh.ID), []byte{}); err != nil {
			return err
		}
		return dedup.Put([]byte(key), []byte(fresh.ID))
	})
	if errors.Is(err, errDuplicate) {
		return claim.Claim{}, &claim.DuplicateError{SubjectID: fresh.SubjectID, Kind: fresh.Kind, ExistingID: existing}
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("create claim: %w", err)
	}
	return fresh, nil
}

func (b *BoltStore) Get(ctx context.Context, id string) (claim.Claim, error) {
	if err := ctx.Err(); err != nil {
		return claim.Claim{}, err
	}
	var c claim.Claim
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClaims).Get([]byte(id))
		if data == nil {
			return claim.ErrNotFound
		}
		var err error
		c, err = unmarshalRecord(data)
		return err
	})
	if errors.Is(err, claim.ErrNotFound) {
		return claim.Claim{}, claim.ErrNotFound
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("get claim %s: %w", id, err)
	}
	return c, nil
}

// FindByStatus walks the by_status index with a cursor, one page per View
// transaction.
func (b *BoltStore) FindByStatus(ctx context.Context, status claim.Status) iter.Seq2[claim.Claim, error] {
	return pager(ctx, b.opts.pageSize, func(_ context.Context, after string, limit int) ([]claim.Claim, error) {
		prefix := statusKey(status, "")
		var page []claim.Claim
		err := b.db.View(func(tx *bolt.Tx) error {
			claims := tx.Bucket(bucketClaims)
			cur := tx.Bucket(bucketByStatus).Cursor()

			start := statusKey(status, after)
			k, _ := cur.Seek(start)
			if after != "" && bytes.Equal(k, start) {
				k, _ = cur.Next()
			}
			for ; k != nil && bytes.HasPrefix(k, prefix) && len(page) < limit; k, _ = cur.Next() {
				data := claims.Get(k[len(prefix):])
				if data == nil {
					return fmt.Errorf("index entry %q has no claim", k)
				}
				c, err := unmarshalRecord(data)
				if err != nil {
					return err
				}
				page = append(page, c)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan claims by status: %w", err)
		}
		return page, nil
	})
}

func (b *BoltStore) CompareAndUpdate(ctx context.Context, id string, expected claim.Status, mutate func(*claim.Claim)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var applied bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		claims := tx.Bucket(bucketClaims)
		data := claims.Get([]byte(id))
		if data == nil {
			return claim.ErrNotFound
		}
		current, err := unmarshalRecord(data)
		if err != nil {
			return err
		}

		next, apply, err := applyMutation(current, expected, mutate, b.opts.clock.Now())
		if err != nil || !apply {
			return err
		}

		encoded, err := marshalRecord(next)
		if err != nil {
			return err
		}
		if err := claims.Put([]byte(id), encoded); err != nil {
			return err
		}
		if next.Status != current.Status {
			idx := tx.Bucket(bucketByStatus)
			if err := idx.Delete(statusKey(current.Status, id)); err != nil {
				return err
			}
			if err := idx.Put(statusKey(next.Status, id), []byte{}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	switch {
	case err == nil:
		return applied, nil
	case errors.Is(err, claim.ErrNotFound), claim.IsTransition(err):
		return false, err
	default:
		return false, fmt.Errorf("compare and update %s: %w", id, err)
	}
}
