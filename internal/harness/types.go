package harness

import (
	"github.com/roach88/claimrecon/internal/engine"
)

// SubmissionEvent records one claim submission.
type SubmissionEvent struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"` // created | duplicate | invalid

	// ClaimID is the created claim, or the existing one for a duplicate.
	ClaimID string `json:"claim_id,omitempty"`
}

// ReportCounts is the clock-free part of an engine.ScanReport.
type ReportCounts struct {
	Pending         int `json:"pending"`
	Skipped         int `json:"skipped"`
	Checked         int `json:"checked"`
	Confirmed       int `json:"confirmed"`
	NotYetConfirmed int `json:"not_yet_confirmed"`
	OracleErrors    int `json:"oracle_errors"`
	StaleWrites     int `json:"stale_writes"`
	Interrupted     int `json:"interrupted"`
}

func countsOf(r engine.ScanReport) ReportCounts {
	return ReportCounts{
		Pending:         r.Pending,
		Skipped:         r.Skipped,
		Checked:         r.Checked,
		Confirmed:       r.Confirmed,
		NotYetConfirmed: r.NotYetConfirmed,
		OracleErrors:    r.OracleErrors,
		StaleWrites:     r.StaleWrites,
		Interrupted:     r.Interrupted,
	}
}

// ClaimSnapshot is the state of one claim after a scan.
type ClaimSnapshot struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Kind        string `json:"kind"`
	Token       string `json:"token,omitempty"`
	Status      string `json:"status"`
	RetryCount  int    `json:"retry_count"`
	OracleCalls int    `json:"oracle_calls"`
}

// ScanTrace is the outcome of one scan. Claims are sorted by ID.
type ScanTrace struct {
	Scan   int             `json:"scan"`
	Report ReportCounts    `json:"report"`
	Claims []ClaimSnapshot `json:"claims"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	Submissions []SubmissionEvent `json:"submissions"`
	Scans       []ScanTrace       `json:"scans"`

	// MaxInFlight is the highest number of concurrent oracle calls seen.
	// It depends on scheduling, so it is kept out of golden traces.
	MaxInFlight int `json:"max_in_flight"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Submissions: []SubmissionEvent{},
		Scans:       []ScanTrace{},
		Errors:      []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Final returns the claim snapshots after the last scan.
func (r *Result) Final() []ClaimSnapshot {
	if len(r.Scans) == 0 {
		return nil
	}
	return r.Scans[len(r.Scans)-1].Claims
}
