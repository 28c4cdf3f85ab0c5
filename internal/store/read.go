package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/claimrecon/internal/claim"
)

const selectClaim = `
	SELECT id, subject_id, claim_kind, verification_token, status, retry_count, created_at, updated_at
	FROM claims`

// Get returns a single claim by ID.
// Returns claim.ErrNotFound if no claim exists.
func (s *SQLiteStore) Get(ctx context.Context, id string) (claim.Claim, error) {
	c, err := scanClaim(s.db.QueryRowContext(ctx, selectClaim+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return claim.Claim{}, claim.ErrNotFound
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("get claim %s: %w", id, err)
	}
	return c, nil
}

// FindByStatus pages through claims with the given status in ID order.
// Each page is read into memory and its rows closed before any claim is
// yielded.
func (s *SQLiteStore) FindByStatus(ctx context.Context, status claim.Status) iter.Seq2[claim.Claim, error] {
	return pager(ctx, s.opts.pageSize, func(ctx context.Context, after string, limit int) ([]claim.Claim, error) {
		return s.readPage(ctx, status, after, limit)
	})
}

func (s *SQLiteStore) readPage(ctx context.Context, status claim.Status, after string, limit int) ([]claim.Claim, error) {
	rows, err := s.db.QueryContext(ctx, selectClaim+`
		WHERE status = ? AND id > ?
		ORDER BY id COLLATE BINARY ASC
		LIMIT ?
	`, string(status), after, limit)
	if err != nil {
		return nil, fmt.Errorf("query claims by status: %w", err)
	}
	defer rows.Close()

	claims := []claim.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}

	return claims, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanClaim scans a single claim row. sql.ErrNoRows is returned unwrapped.
func scanClaim(row rowScanner) (claim.Claim, error) {
	var (
		c                claim.Claim
		status           string
		created, updated string
	)
	err := row.Scan(
		&c.ID,
		&c.SubjectID,
		&c.Kind,
		&c.VerificationToken,
		&status,
		&c.RetryCount,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return claim.Claim{}, err
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("scan claim: %w", err)
	}

	c.Status = claim.Status(status)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return claim.Claim{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return claim.Claim{}, err
	}
	return c, nil
}
