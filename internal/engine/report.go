package engine

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// ScanReport summarizes one scan.
type ScanReport struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Pending is the number of Unconfirmed claims the scan read.
	Pending int `json:"pending"`

	// Skipped claims had no verification token and were left untouched.
	Skipped int `json:"skipped"`

	// Checked is the number of oracle calls made.
	Checked int `json:"checked"`

	// Confirmed counts confirmations written.
	Confirmed int `json:"confirmed"`

	// NotYetConfirmed counts NotYetConfirmed verdicts.
	NotYetConfirmed int `json:"notYetConfirmed"`

	// OracleErrors counts failed calls, per-call timeouts included.
	OracleErrors int `json:"oracleErrors"`

	// StaleWrites counts conditional writes the store rejected.
	StaleWrites int `json:"staleWrites"`

	// Interrupted counts calls cut short by cancelling RunOnce's context.
	// Nothing is written for them.
	Interrupted int `json:"interrupted"`
}

// Duration is the wall time of the scan.
func (r ScanReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// LogValue implements slog.LogValuer.
func (r ScanReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pending", r.Pending),
		slog.Int("skipped", r.Skipped),
		slog.Int("checked", r.Checked),
		slog.Int("confirmed", r.Confirmed),
		slog.Int("not_yet_confirmed", r.NotYetConfirmed),
		slog.Int("oracle_errors", r.OracleErrors),
		slog.Int("stale_writes", r.StaleWrites),
		slog.Int("interrupted", r.Interrupted),
		slog.Duration("duration", r.Duration()),
	)
}

// scanCounters is updated concurrently by the workers of one scan.
type scanCounters struct {
	pending      atomic.Int64
	skipped      atomic.Int64
	checked      atomic.Int64
	confirmed    atomic.Int64
	notYet       atomic.Int64
	oracleErrors atomic.Int64
	stale        atomic.Int64
	interrupted  atomic.Int64
}

func (c *scanCounters) report(started, finished time.Time) ScanReport {
	return ScanReport{
		StartedAt:       started,
		FinishedAt:      finished,
		Pending:         int(c.pending.Load()),
		Skipped:         int(c.skipped.Load()),
		Checked:         int(c.checked.Load()),
		Confirmed:       int(c.confirmed.Load()),
		NotYetConfirmed: int(c.notYet.Load()),
		OracleErrors:    int(c.oracleErrors.Load()),
		StaleWrites:     int(c.stale.Load()),
		Interrupted:     int(c.interrupted.Load()),
	}
}
