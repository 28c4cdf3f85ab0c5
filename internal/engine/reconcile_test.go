package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/oracle"
	"github.com/roach88/claimrecon/internal/store"
)

func runScans(t *testing.T, e *Engine, n int) []ScanReport {
	t.Helper()
	var reports []ScanReport
	for i := 0; i < n; i++ {
		r, err := e.RunOnce(context.Background())
		require.NoError(t, err, "scan %d", i+1)
		reports = append(reports, r)
	}
	return reports
}

// Scenario A: the oracle fails twice, then confirms.
func TestRunOnce_ErrorsThenConfirmed(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{
		"tx-1": {oracle.OutcomeError, oracle.OutcomeError, oracle.OutcomeConfirmed},
	})
	e := newTestEngine(t, s, o, testConfig())

	reports := runScans(t, e, 3)

	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusConfirmed, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	assert.Equal(t, 1, reports[0].OracleErrors)
	assert.Equal(t, 1, reports[1].OracleErrors)
	assert.Equal(t, 1, reports[2].Confirmed)
}

// Scenario B: a claim without a token is never checked or retried.
func TestRunOnce_SkipsClaimWithoutToken(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "")
	o := oracle.NewScriptedOracle(nil)
	e := newTestEngine(t, s, o, testConfig())

	reports := runScans(t, e, 5)

	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusUnconfirmed, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Zero(t, o.Calls(""))
	for _, r := range reports {
		assert.Equal(t, 1, r.Pending)
		assert.Equal(t, 1, r.Skipped)
		assert.Zero(t, r.Checked)
	}
}

// Scenario C: the second claim for the same (subject, kind) is rejected.
func TestSubmit_DuplicateClaimRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Submit(ctx, s, claim.Submission{SubjectID: "u1", Kind: "signup", VerificationToken: "tx-1"})
	require.NoError(t, err)
	_, err = store.Submit(ctx, s, claim.Submission{SubjectID: "u1", Kind: "signup", VerificationToken: "tx-2"})
	assert.ErrorIs(t, err, claim.ErrDuplicate)
}

// Scenario D: no more than ConcurrencyLimit oracle calls are in flight.
func TestRunOnce_BoundsConcurrency(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 5; i++ {
		createClaim(t, s, fmt.Sprintf("u%d", i), fmt.Sprintf("tx-%d", i))
	}

	var inFlight, maxInFlight, total atomic.Int32
	release := make(chan struct{})
	o := oracle.Func(func(ctx context.Context, token string) (oracle.Verdict, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		total.Add(1)
		select {
		case <-release:
			return oracle.Confirmed, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	cfg := testConfig()
	cfg.ConcurrencyLimit = 2
	cfg.CallTimeout = 5 * time.Second
	e := newTestEngine(t, s, o, cfg)

	type result struct {
		report ScanReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := e.RunOnce(context.Background())
		done <- result{r, err}
	}()

	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), inFlight.Load(), "a third call started while two were blocked")
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	assert.Equal(t, int32(5), total.Load())
	assert.Equal(t, 5, res.report.Confirmed)
}

func TestRunOnce_NotYetConfirmedCountsEveryScan(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	e := newTestEngine(t, s, oracle.NewScriptedOracle(nil), testConfig())

	const scans = 4
	runScans(t, e, scans)

	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusUnconfirmed, got.Status)
	assert.Equal(t, scans, got.RetryCount)
}

func TestRunOnce_ConfirmRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{"tx-1": {oracle.OutcomeConfirmed}})
	e := newTestEngine(t, s, o, testConfig())

	report := runScans(t, e, 1)[0]

	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusConfirmed, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, ScanReport{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Pending:    1,
		Checked:    1,
		Confirmed:  1,
	}, report)
}

func TestRunOnce_ConfirmedClaimIsNeverTouchedAgain(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{
		"tx-1": {oracle.OutcomePending, oracle.OutcomeConfirmed},
	})
	e := newTestEngine(t, s, o, testConfig())

	runScans(t, e, 2)
	confirmed := getClaim(t, s, c.ID)
	require.Equal(t, claim.StatusConfirmed, confirmed.Status)

	runScans(t, e, 3)
	assert.Equal(t, confirmed, getClaim(t, s, c.ID))
	assert.Equal(t, 2, o.Calls("tx-1"), "confirmed claims are not scanned")
}

func TestRunOnce_CallTimeoutCountsAsOracleError(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{"tx-1": {oracle.OutcomeBlock}})

	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	e := newTestEngine(t, s, o, cfg)

	report := runScans(t, e, 1)[0]

	assert.Equal(t, 1, report.OracleErrors)
	assert.Zero(t, report.Interrupted)
	assert.Equal(t, 1, getClaim(t, s, c.ID).RetryCount)
}

func TestRunOnce_UnknownVerdictCountsAsOracleError(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.Func(func(context.Context, string) (oracle.Verdict, error) {
		return oracle.Verdict("maybe"), nil
	})
	e := newTestEngine(t, s, o, testConfig())

	report := runScans(t, e, 1)[0]
	assert.Equal(t, 1, report.OracleErrors)
	assert.Equal(t, 1, getClaim(t, s, c.ID).RetryCount)
}

// Another writer confirms the claim while the oracle call is in flight.
// The engine's retry increment is computed from a stale read and must be
// discarded.
func TestRunOnce_StaleWriteDiscarded(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.Func(func(ctx context.Context, token string) (oracle.Verdict, error) {
		ok, err := s.CompareAndUpdate(ctx, c.ID, claim.StatusUnconfirmed, claim.Confirm)
		assert.NoError(t, err)
		assert.True(t, ok)
		return oracle.NotYetConfirmed, nil
	})
	e := newTestEngine(t, s, o, testConfig())

	report := runScans(t, e, 1)[0]

	assert.Equal(t, 1, report.StaleWrites)
	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusConfirmed, got.Status)
	assert.Zero(t, got.RetryCount)
}

// Two engines share a store. The claim is confirmed and notified once.
func TestRunOnce_TwoEnginesConfirmOnce(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")

	var notified atomic.Int32
	notifier := NotifierFunc(func(context.Context, claim.Claim) error {
		notified.Add(1)
		return nil
	})
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{"tx-1": {oracle.OutcomeConfirmed}})

	a := newTestEngine(t, s, o, testConfig(), WithNotifier(notifier))
	b := newTestEngine(t, s, o, testConfig(), WithNotifier(notifier))

	var wg sync.WaitGroup
	reports := make([]ScanReport, 2)
	for i, e := range []*Engine{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.RunOnce(context.Background())
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reports[0].Confirmed+reports[1].Confirmed)
	assert.Equal(t, int32(1), notified.Load())
	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusConfirmed, got.Status)
	assert.Zero(t, got.RetryCount)
}

func TestRunOnce_NotifiesWithStoredClaim(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-1")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{"tx-1": {oracle.OutcomeConfirmed}})

	var got []claim.Claim
	notifier := NotifierFunc(func(_ context.Context, c claim.Claim) error {
		got = append(got, c)
		return errors.New("broker down")
	})
	e := newTestEngine(t, s, o, testConfig(), WithNotifier(notifier))

	report, err := e.RunOnce(context.Background())
	require.NoError(t, err, "notification failure is not a scan failure")
	assert.Equal(t, 1, report.Confirmed)

	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
	assert.Equal(t, claim.StatusConfirmed, got[0].Status)
}

func TestRunOnce_RecordsMetrics(t *testing.T) {
	s := setupTestStore(t)
	createClaim(t, s, "u1", "tx-1")
	createClaim(t, s, "u2", "tx-2")
	createClaim(t, s, "u3", "")
	o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{
		"tx-1": {oracle.OutcomeConfirmed},
		"tx-2": {oracle.OutcomeError},
	})
	m := observability.NewMetrics(prometheus.NewRegistry())
	e := newTestEngine(t, s, o, testConfig(), WithMetrics(m))

	runScans(t, e, 1)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.ClaimsConfirmedTotal))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.SkippedTotal))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OracleChecksTotal.WithLabelValues(observability.OutcomeConfirmed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OracleChecksTotal.WithLabelValues(observability.OutcomeError)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ScansTotal.WithLabelValues("ok")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.InFlightChecks))
}

// failingStore fails every CompareAndUpdate.
type failingStore struct {
	store.ClaimStore
	err error
}

func (f *failingStore) CompareAndUpdate(context.Context, string, claim.Status, func(*claim.Claim)) (bool, error) {
	return false, f.err
}

func TestRunOnce_StoreErrorAbortsScan(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 5; i++ {
		createClaim(t, s, fmt.Sprintf("u%d", i), fmt.Sprintf("tx-%d", i))
	}
	diskFull := errors.New("disk full")

	cfg := testConfig()
	cfg.ConcurrencyLimit = 1
	e := newTestEngine(t, &failingStore{ClaimStore: s, err: diskFull}, oracle.NewScriptedOracle(nil), cfg)

	report, err := e.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, IsScanError(err))
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, report.Checked, "no claim dispatched after the failure")

	var se *ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, report, se.Report)

	// The engine is still usable; the next scan tries again.
	_, err = e.RunOnce(context.Background())
	assert.True(t, IsScanError(err))
}

// brokenReader fails to read pending claims.
type brokenReader struct {
	store.ClaimStore
}

func (brokenReader) FindByStatus(context.Context, claim.Status) iter.Seq2[claim.Claim, error] {
	return func(yield func(claim.Claim, error) bool) {
		yield(claim.Claim{}, errors.New("database is locked"))
	}
}

func TestRunOnce_ReadErrorIsScanError(t *testing.T) {
	e := newTestEngine(t, brokenReader{setupTestStore(t)}, oracle.NewScriptedOracle(nil), testConfig())

	_, err := e.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, IsScanError(err))
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRunOnce_CancelledContext(t *testing.T) {
	s := setupTestStore(t)
	createClaim(t, s, "u1", "tx-1")
	e := newTestEngine(t, s, oracle.NewScriptedOracle(nil), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsScanError(err))
}

func TestRunOnce_WorksAcrossBackends(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{store.DriverSQLite, store.DriverBolt} {
		t.Run(driver, func(t *testing.T) {
			s, err := store.Open(driver, filepath.Join(dir, "claims."+driver))
			require.NoError(t, err)
			defer s.Close()

			var ids []string
			for i := 0; i < 6; i++ {
				ids = append(ids, createClaim(t, s, fmt.Sprintf("u%d", i), fmt.Sprintf("tx-%d", i)).ID)
			}
			o := oracle.NewScriptedOracle(map[string][]oracle.Outcome{
				"tx-0": {oracle.OutcomeConfirmed},
				"tx-1": {oracle.OutcomeError, oracle.OutcomeConfirmed},
			})
			e := newTestEngine(t, s, o, testConfig())

			runScans(t, e, 2)

			assert.Equal(t, claim.StatusConfirmed, getClaim(t, s, ids[0]).Status)
			assert.Zero(t, getClaim(t, s, ids[0]).RetryCount)
			assert.Equal(t, claim.StatusConfirmed, getClaim(t, s, ids[1]).Status)
			assert.Equal(t, 1, getClaim(t, s, ids[1]).RetryCount)
			for _, id := range ids[2:] {
				assert.Equal(t, 2, getClaim(t, s, id).RetryCount)
			}
		})
	}
}

// A verdict always belongs to the token that was checked: the token cannot
// be swapped while its check is in flight.
func TestRunOnce_TokenSwapDuringCheckRefused(t *testing.T) {
	s := setupTestStore(t)
	c := createClaim(t, s, "u1", "tx-old")

	var (
		mu        sync.Mutex
		checked   = map[string]int{}
		attachErr error
	)
	o := oracle.Func(func(ctx context.Context, token string) (oracle.Verdict, error) {
		mu.Lock()
		checked[token]++
		mu.Unlock()

		_, err := store.AttachToken(ctx, s, c.ID, "tx-new")
		mu.Lock()
		attachErr = err
		mu.Unlock()
		return oracle.Confirmed, nil
	})
	e := newTestEngine(t, s, o, testConfig())

	report := runScans(t, e, 1)[0]
	assert.Equal(t, 1, report.Confirmed)

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, attachErr, claim.ErrTokenAlreadySet)
	assert.Equal(t, map[string]int{"tx-old": 1}, checked)

	got := getClaim(t, s, c.ID)
	assert.Equal(t, claim.StatusConfirmed, got.Status)
	assert.Equal(t, "tx-old", got.VerificationToken, "confirmed token is the one the oracle checked")
}
