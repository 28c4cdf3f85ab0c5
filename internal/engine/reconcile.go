package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/oracle"
)

// RunOnce performs exactly one scan and returns its report.
//
// Per-claim oracle failures never fail the scan. A store error stops
// dispatching further claims and is returned as *ScanError after in-flight
// checks finish. If ctx is cancelled the scan stops early, in-flight oracle
// calls are cancelled and ctx.Err() is returned.
func (e *Engine) RunOnce(ctx context.Context) (ScanReport, error) {
	return e.runScan(ctx, false)
}

// runScan performs one scan. Cancelling ctx always stops dispatch. With
// drain set, oracle calls already dispatched run to completion (bounded by
// CallTimeout) and their verdicts are recorded.
func (e *Engine) runScan(ctx context.Context, drain bool) (ScanReport, error) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	ctx, span := e.tracer.Start(ctx, "reconcile.scan")
	defer span.End()

	callBase := ctx
	if drain {
		callBase = context.WithoutCancel(ctx)
	}

	started := e.clock.Now()
	var counters scanCounters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ConcurrencyLimit)

	var readErr error
	for c, err := range e.store.FindByStatus(gctx, claim.StatusUnconfirmed) {
		if err != nil {
			readErr = err
			break
		}
		counters.pending.Add(1)

		if !c.Eligible() {
			counters.skipped.Add(1)
			continue
		}

		// Go blocks while ConcurrencyLimit checks are running.
		g.Go(func() error {
			return e.reconcile(gctx, callBase, c, &counters)
		})
		if gctx.Err() != nil {
			break
		}
	}
	workErr := g.Wait()

	report := counters.report(started, e.clock.Now())
	e.metrics.Skipped(report.Skipped)
	span.SetAttributes(
		attribute.Int("claims.pending", report.Pending),
		attribute.Int("claims.checked", report.Checked),
		attribute.Int("claims.confirmed", report.Confirmed),
	)

	err := e.scanError(ctx, workErr, readErr, report)
	e.metrics.ScanFinished(report.Duration(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

// scanError picks the error RunOnce reports. A store error from a worker
// wins over the cancellation it caused in the reader.
func (e *Engine) scanError(ctx context.Context, workErr, readErr error, report ScanReport) error {
	switch {
	case workErr != nil:
		return &ScanError{Report: report, Err: workErr}
	case ctx.Err() != nil:
		return ctx.Err()
	case readErr != nil:
		return &ScanError{Report: report, Err: fmt.Errorf("read pending claims: %w", readErr)}
	}
	return nil
}

// reconcile checks one claim and records the verdict. It returns an error
// only for store failures, which abort the scan. The oracle call runs under
// callBase, so it outlives dispatchCtx when the scan is draining.
func (e *Engine) reconcile(dispatchCtx, callBase context.Context, c claim.Claim, counters *scanCounters) error {
	if dispatchCtx.Err() != nil {
		// Dispatched after the scan was aborted or the engine stopped.
		return nil
	}

	ctx, span := e.tracer.Start(callBase, "reconcile.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.id", c.ID),
		attribute.Int("claim.retry_count", c.RetryCount),
	)

	counters.checked.Add(1)
	e.metrics.CheckStarted()
	begin := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	verdict, err := e.oracle.Check(callCtx, c.VerificationToken)
	cancel()

	if err != nil && ctx.Err() != nil {
		// Caller cancelled the scan, not an oracle verdict.
		counters.interrupted.Add(1)
		e.metrics.CheckFinished(observability.OutcomeInterrupted, time.Since(begin))
		e.logger.Debug("oracle call interrupted", "claim_id", c.ID)
		return nil
	}

	// A verdict that arrived is recorded even if the scan was cancelled meanwhile.
	writeCtx := context.WithoutCancel(ctx)

	if err == nil && verdict == oracle.Confirmed {
		e.metrics.CheckFinished(observability.OutcomeConfirmed, time.Since(begin))
		span.SetAttributes(attribute.String("verdict", string(verdict)))
		return e.confirm(writeCtx, c, counters)
	}

	if err == nil && verdict != oracle.NotYetConfirmed {
		err = &oracle.Error{Token: c.VerificationToken, Op: "verdict", Err: fmt.Errorf("unknown verdict %q", verdict)}
	}
	if err != nil {
		counters.oracleErrors.Add(1)
		e.metrics.CheckFinished(observability.OutcomeError, time.Since(begin))
		span.RecordError(err)
		e.logger.Warn("oracle check failed",
			"claim_id", c.ID,
			"retry_count", c.RetryCount,
			"error", err,
		)
	} else {
		counters.notYet.Add(1)
		e.metrics.CheckFinished(observability.OutcomeNotYetConfirmed, time.Since(begin))
		span.SetAttributes(attribute.String("verdict", string(verdict)))
	}
	return e.recordAttempt(writeCtx, c, counters)
}

func (e *Engine) confirm(ctx context.Context, c claim.Claim, counters *scanCounters) error {
	applied, err := e.store.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
	if err != nil {
		return e.writeFailed(c, err, counters)
	}
	if !applied {
		counters.stale.Add(1)
		e.metrics.StaleWrite()
		e.logger.Debug("confirmation discarded: claim changed", "claim_id", c.ID)
		return nil
	}

	counters.confirmed.Add(1)
	e.metrics.ClaimConfirmed()
	e.logger.Info("claim confirmed", "claim_id", c.ID, "retry_count", c.RetryCount)

	confirmed, err := e.store.Get(ctx, c.ID)
	if err != nil {
		confirmed = c
		claim.Confirm(&confirmed)
	}
	if err := e.notifier.ClaimConfirmed(ctx, confirmed); err != nil {
		e.logger.Warn("confirmation notification failed", "claim_id", c.ID, "error", err)
	}
	return nil
}

func (e *Engine) recordAttempt(ctx context.Context, c claim.Claim, counters *scanCounters) error {
	applied, err := e.store.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.RecordAttempt)
	if err != nil {
		return e.writeFailed(c, err, counters)
	}
	if !applied {
		counters.stale.Add(1)
		e.metrics.StaleWrite()
		e.logger.Debug("retry increment discarded: claim changed", "claim_id", c.ID)
	}
	return nil
}

// writeFailed classifies a CompareAndUpdate error. A claim that vanished
// is treated like a stale write; anything else is a store failure.
func (e *Engine) writeFailed(c claim.Claim, err error, counters *scanCounters) error {
	if errors.Is(err, claim.ErrNotFound) {
		counters.stale.Add(1)
		e.metrics.StaleWrite()
		e.logger.Debug("write discarded: claim not found", "claim_id", c.ID)
		return nil
	}
	return fmt.Errorf("update claim %s: %w", c.ID, err)
}
