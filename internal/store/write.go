package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/claimrecon/internal/claim"
)

// Create inserts a new claim.
// Uses ON CONFLICT(dedup_key) DO NOTHING so a duplicate (subject, kind) pair
// is detected from RowsAffected instead of a driver-specific error code.
func (s *SQLiteStore) Create(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	fresh, key, err := prepareCreate(c, s.opts)
	if err != nil {
		return claim.Claim{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claims
		(id, subject_id, claim_kind, dedup_key, verification_token, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING
	`,
		fresh.ID,
		fresh.SubjectID,
		fresh.Kind,
		key,
		fresh.VerificationToken,
		string(fresh.Status),
		fresh.RetryCount,
		formatTime(fresh.CreatedAt),
		formatTime(fresh.UpdatedAt),
	)
	if err != nil {
		return claim.Claim{}, fmt.Errorf("create claim: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return claim.Claim{}, fmt.Errorf("create claim: %w", err)
	}
	if affected == 0 {
		dup := &claim.DuplicateError{SubjectID: fresh.SubjectID, Kind: fresh.Kind}
		err := s.db.QueryRowContext(ctx, `SELECT id FROM claims WHERE dedup_key = ?`, key).Scan(&dup.ExistingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return claim.Claim{}, fmt.Errorf("create claim: lookup duplicate: %w", err)
		}
		return claim.Claim{}, dup
	}

	return fresh, nil
}

// CompareAndUpdate reads, mutates and writes the claim inside one transaction.
// The UPDATE repeats the status, retry_count and verification_token
// predicates so the write is conditional even if another process changed the
// row in between.
func (s *SQLiteStore) CompareAndUpdate(ctx context.Context, id string, expected claim.Status, mutate func(*claim.Claim)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("compare and update %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	current, err := scanClaim(tx.QueryRowContext(ctx, selectClaim+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, claim.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("compare and update %s: %w", id, err)
	}

	next, apply, err := applyMutation(current, expected, mutate, s.opts.clock.Now())
	if err != nil || !apply {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE claims
		SET verification_token = ?, status = ?, retry_count = ?, updated_at = ?
		WHERE id = ? AND status = ? AND retry_count = ? AND verification_token = ?
	`,
		next.VerificationToken,
		string(next.Status),
		next.RetryCount,
		formatTime(next.UpdatedAt),
		id,
		string(current.Status),
		current.RetryCount,
		current.VerificationToken,
	)
	if err != nil {
		return false, fmt.Errorf("compare and update %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare and update %s: %w", id, err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("compare and update %s: commit: %w", id, err)
	}
	return true, nil
}
