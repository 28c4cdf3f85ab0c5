package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/engine"
	"github.com/roach88/claimrecon/internal/oracle"
	"github.com/roach88/claimrecon/internal/store"
	"github.com/roach88/claimrecon/internal/testutil"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store    *store.MemoryStore
	oracle   *oracle.ScriptedOracle
	engine   *engine.Engine
	inFlight *inFlightGauge
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh MemoryStore. IDs come from a sequence
// and the clock advances one second per reading, so traces are stable.
//
// Execution flow:
//  1. Submit claims in order
//  2. Run the requested number of scans, attaching tokens between them
//  3. Evaluate expectations against the final state
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	if err := h.submit(ctx, scenario.Claims, result); err != nil {
		return nil, err
	}

	for scan := 1; scan <= scenario.Scans; scan++ {
		report, err := h.engine.RunOnce(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", scan, err)
		}
		claims, err := h.snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", scan, err)
		}
		result.Scans = append(result.Scans, ScanTrace{
			Scan:   scan,
			Report: countsOf(report),
			Claims: claims,
		})

		if err := h.attach(ctx, scenario.Attach, scan); err != nil {
			return nil, err
		}
	}
	result.MaxInFlight = h.inFlight.Max()

	for _, msg := range EvaluateExpectations(result, scenario) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	limit := scenario.ConcurrencyLimit
	if limit == 0 {
		limit = DefaultConcurrencyLimit
	}
	timeout := scenario.CallTimeoutMs
	if timeout == 0 {
		timeout = DefaultCallTimeoutMs
	}

	clock := testutil.NewSteppingClock(time.Second)
	st := store.NewMemoryStore(
		store.WithClock(clock),
		store.WithIDGenerator(testutil.NewSequenceIDs("claim")),
	)
	scripted := oracle.NewScriptedOracle(scenario.scripts())
	gauge := &inFlightGauge{}

	eng, err := engine.New(st, gauge.wrap(scripted), engine.Config{
		ScanInterval:     time.Hour, // scans are driven with RunOnce
		ConcurrencyLimit: limit,
		CallTimeout:      time.Duration(timeout) * time.Millisecond,
	},
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &Harness{store: st, oracle: scripted, engine: eng, inFlight: gauge}, nil
}

// submit creates the scenario's claims and records each outcome. A
// submission whose outcome differs from ExpectError fails the result.
func (h *Harness) submit(ctx context.Context, steps []ClaimStep, result *Result) error {
	for i, step := range steps {
		created, err := store.Submit(ctx, h.store, claim.Submission{
			SubjectID:         step.Subject,
			Kind:              step.Kind,
			VerificationToken: step.Token,
		})

		event := SubmissionEvent{Subject: step.Subject, Kind: step.Kind}
		var dup *claim.DuplicateError
		switch {
		case err == nil:
			event.Outcome = SubmitCreated
			event.ClaimID = created.ID
		case errors.As(err, &dup):
			event.Outcome = SubmitDuplicate
			event.ClaimID = dup.ExistingID
		case claim.IsValidation(err):
			event.Outcome = SubmitInvalid
		default:
			return fmt.Errorf("claims[%d]: %w", i, err)
		}
		result.Submissions = append(result.Submissions, event)

		want := step.ExpectError
		if want == "" {
			want = SubmitCreated
		}
		if event.Outcome != want {
			result.AddError((&AssertionError{
				Type:     "submission",
				Expected: fmt.Sprintf("claims[%d] %s", i, want),
				Actual:   fmt.Sprintf("%s (%v)", event.Outcome, err),
			}).Error())
		}
	}
	return nil
}

func (h *Harness) attach(ctx context.Context, steps []AttachStep, afterScan int) error {
	for i, step := range steps {
		if step.AfterScan != afterScan {
			continue
		}
		c, err := h.find(ctx, step.Subject, step.Kind)
		if err != nil {
			return fmt.Errorf("attach[%d]: %w", i, err)
		}
		if _, err := store.AttachToken(ctx, h.store, c.ID, step.Token); err != nil {
			return fmt.Errorf("attach[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) find(ctx context.Context, subject, kind string) (claim.Claim, error) {
	key := claim.DedupKey(subject, kind)
	for _, status := range []claim.Status{claim.StatusUnconfirmed, claim.StatusConfirmed} {
		claims, err := store.List(ctx, h.store, status)
		if err != nil {
			return claim.Claim{}, err
		}
		for _, c := range claims {
			if claim.DedupKey(c.SubjectID, c.Kind) == key {
				return c, nil
			}
		}
	}
	return claim.Claim{}, fmt.Errorf("no claim for subject %q kind %q: %w", subject, kind, claim.ErrNotFound)
}

// snapshot returns every claim, sorted by ID.
func (h *Harness) snapshot(ctx context.Context) ([]ClaimSnapshot, error) {
	out := []ClaimSnapshot{}
	for _, status := range []claim.Status{claim.StatusUnconfirmed, claim.StatusConfirmed} {
		claims, err := store.List(ctx, h.store, status)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			calls := 0
			if c.VerificationToken != "" {
				calls = h.oracle.Calls(c.VerificationToken)
			}
			out = append(out, ClaimSnapshot{
				ID:          c.ID,
				Subject:     c.SubjectID,
				Kind:        c.Kind,
				Token:       c.VerificationToken,
				Status:      string(c.Status),
				RetryCount:  c.RetryCount,
				OracleCalls: calls,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// inFlightGauge tracks the peak number of concurrent oracle calls.
type inFlightGauge struct {
	mu      sync.Mutex
	current int
	max     int
}

func (g *inFlightGauge) wrap(next oracle.Oracle) oracle.Oracle {
	return oracle.Func(func(ctx context.Context, token string) (oracle.Verdict, error) {
		g.mu.Lock()
		g.current++
		if g.current > g.max {
			g.max = g.current
		}
		g.mu.Unlock()

		defer func() {
			g.mu.Lock()
			g.current--
			g.mu.Unlock()
		}()
		return next.Check(ctx, token)
	})
}

// Max returns the peak.
func (g *inFlightGauge) Max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}
