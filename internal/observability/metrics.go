// Package observability provides metrics, tracing and logger setup for the
// reconciliation engine and its HTTP surface.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Metrics method is a no-op on a nil receiver, so components can take
// an optional *Metrics without nil checks at each call site.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "claimrecon"

const (
	engineSubsystem = "engine"
	httpSubsystem   = "http"
)

// Oracle check outcomes used as the "outcome" label.
const (
	OutcomeConfirmed       = "confirmed"
	OutcomeNotYetConfirmed = "not_yet_confirmed"
	OutcomeError           = "error"
	OutcomeInterrupted     = "interrupted"
)

// Metrics holds the Prometheus collectors for claimrecon.
type Metrics struct {
	// ScansTotal counts finished scans.
	// Labels: result (ok, error)
	ScansTotal *prometheus.CounterVec

	// ScanDurationSeconds measures a whole scan.
	ScanDurationSeconds prometheus.Histogram

	// OracleChecksTotal counts oracle calls by outcome.
	// Labels: outcome (confirmed, not_yet_confirmed, error, interrupted)
	OracleChecksTotal *prometheus.CounterVec

	// OracleCheckDurationSeconds measures single oracle calls.
	OracleCheckDurationSeconds prometheus.Histogram

	// InFlightChecks is the number of oracle calls currently running.
	InFlightChecks prometheus.Gauge

	// ClaimsConfirmedTotal counts applied confirmations.
	ClaimsConfirmedTotal prometheus.Counter

	// StaleWritesTotal counts conditional writes rejected by the store.
	StaleWritesTotal prometheus.Counter

	// SkippedTotal counts pending claims skipped for lack of a token.
	SkippedTotal prometheus.Counter

	// HTTPRequestsTotal counts API requests.
	// Labels: method, route, code
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "scans_total",
			Help:      "Total reconciliation scans by result",
		}, []string{"result"}),
		ScanDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "scan_duration_seconds",
			Help:      "Duration of reconciliation scans in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		OracleChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "oracle_checks_total",
			Help:      "Total oracle calls by outcome",
		}, []string{"outcome"}),
		OracleCheckDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "oracle_check_duration_seconds",
			Help:      "Duration of single oracle calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		InFlightChecks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "inflight_checks",
			Help:      "Oracle calls currently in flight",
		}),
		ClaimsConfirmedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "claims_confirmed_total",
			Help:      "Total claims moved to confirmed",
		}),
		StaleWritesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "stale_writes_total",
			Help:      "Conditional writes rejected because the claim changed",
		}),
		SkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "skipped_claims_total",
			Help:      "Pending claims skipped because they have no verification token",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: httpSubsystem,
			Name:      "requests_total",
			Help:      "Total API requests by method, route and status code",
		}, []string{"method", "route", "code"}),
	}
}

// ScanFinished records one completed scan.
func (m *Metrics) ScanFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDurationSeconds.Observe(d.Seconds())
}

// CheckStarted marks an oracle call as in flight.
func (m *Metrics) CheckStarted() {
	if m == nil {
		return
	}
	m.InFlightChecks.Inc()
}

// CheckFinished records the outcome of an oracle call started with CheckStarted.
func (m *Metrics) CheckFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.InFlightChecks.Dec()
	m.OracleChecksTotal.WithLabelValues(outcome).Inc()
	m.OracleCheckDurationSeconds.Observe(d.Seconds())
}

// ClaimConfirmed counts an applied confirmation.
func (m *Metrics) ClaimConfirmed() {
	if m == nil {
		return
	}
	m.ClaimsConfirmedTotal.Inc()
}

// StaleWrite counts a rejected conditional write.
func (m *Metrics) StaleWrite() {
	if m == nil {
		return
	}
	m.StaleWritesTotal.Inc()
}

// Skipped counts n claims skipped for lack of a token.
func (m *Metrics) Skipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedTotal.Add(float64(n))
}

// HTTPRequest counts one API request.
func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
