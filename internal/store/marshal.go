package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/claimrecon/internal/claim"
)

// formatTime converts a timestamp to its stored TEXT form.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime.
func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// record is the serialized form of a claim in key/value backends.
type record struct {
	ID                string       `json:"id"`
	SubjectID         string       `json:"subject_id"`
	Kind              string       `json:"claim_kind"`
	DedupKey          string       `json:"dedup_key"`
	VerificationToken string       `json:"verification_token"`
	Status            claim.Status `json:"status"`
	RetryCount        int          `json:"retry_count"`
	CreatedAt         string       `json:"created_at"`
	UpdatedAt         string       `json:"updated_at"`
}

func marshalRecord(c claim.Claim) ([]byte, error) {
	data, err := json.Marshal(record{
		ID:                c.ID,
		SubjectID:         c.SubjectID,
		Kind:              c.Kind,
		DedupKey:          claim.DedupKey(c.SubjectID, c.Kind),
		VerificationToken: c.VerificationToken,
		Status:            c.Status,
		RetryCount:        c.RetryCount,
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal claim %s: %w", c.ID, err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (claim.Claim, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return claim.Claim{}, fmt.Errorf("unmarshal claim: %w", err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return claim.Claim{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return claim.Claim{}, err
	}
	return claim.Claim{
		ID:                r.ID,
		SubjectID:         r.SubjectID,
		Kind:              r.Kind,
		VerificationToken: r.VerificationToken,
		Status:            r.Status,
		RetryCount:        r.RetryCount,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}
