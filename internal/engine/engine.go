package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/oracle"
	"github.com/roach88/claimrecon/internal/store"
)

// Config holds the engine tunables. All values must be positive.
type Config struct {
	// ScanInterval is the time between the start of consecutive scans.
	ScanInterval time.Duration

	// ConcurrencyLimit caps oracle calls in flight within one scan.
	ConcurrencyLimit int

	// CallTimeout bounds each oracle call. A timeout counts as an oracle error.
	CallTimeout time.Duration
}

// Default engine tunables.
const (
	DefaultScanInterval     = 30 * time.Second
	DefaultConcurrencyLimit = 8
	DefaultCallTimeout      = 10 * time.Second
)

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		ScanInterval:     DefaultScanInterval,
		ConcurrencyLimit: DefaultConcurrencyLimit,
		CallTimeout:      DefaultCallTimeout,
	}
}

// Validate returns a *ConfigError for the first non-positive value.
func (c Config) Validate() error {
	switch {
	case c.ScanInterval <= 0:
		return &ConfigError{Field: "ScanInterval", Value: c.ScanInterval, Reason: "must be positive"}
	case c.ConcurrencyLimit < 1:
		return &ConfigError{Field: "ConcurrencyLimit", Value: c.ConcurrencyLimit, Reason: "must be at least 1"}
	case c.CallTimeout <= 0:
		return &ConfigError{Field: "CallTimeout", Value: c.CallTimeout, Reason: "must be positive"}
	}
	return nil
}

// Engine periodically reconciles Unconfirmed claims against an oracle.
//
// Thread-safety model:
//   - Start(), Stop(): safe from any goroutine
//   - RunOnce(): safe from any goroutine; scans are serialized
//
// Lifecycle: New -> Start -> Stop. An engine cannot be restarted after Stop.
type Engine struct {
	store    store.ClaimStore
	oracle   oracle.Oracle
	cfg      Config
	notifier Notifier
	metrics  *observability.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	clock    claim.Clock

	// scanMu serializes scans so at most one pass acts on a claim at a time.
	scanMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// EngineOption allows configuration of optional collaborators.
type EngineOption func(*Engine)

// WithNotifier sets the confirmation notifier. Default: none.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithMetrics sets the Prometheus metrics. Default: none.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for scan and check spans. Default: no-op.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(c claim.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an engine. It returns a *ConfigError if cfg is invalid.
func New(s store.ClaimStore, o oracle.Oracle, cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:    s,
		oracle:   o,
		cfg:      cfg,
		notifier: nopNotifier{},
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   slog.Default(),
		clock:    claim.SystemClock{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns the engine's tunables.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start launches the recurring scan: one scan now, then one per ScanInterval.
//
// Cancelling ctx has the same effect as Stop, except that it does not wait.
// Either way the in-flight scan drains instead of aborting its oracle calls.
// Returns ErrAlreadyStarted if the engine is running and ErrStopped after Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.started = true
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.loop(runCtx, e.done)
	return nil
}

// Stop halts dispatch in the in-flight scan and blocks until the oracle
// calls already dispatched have finished and their verdicts are written.
// Each of those calls is still bounded by CallTimeout. No scan starts after
// Stop returns. Safe to call more than once, and before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the background loop exits. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	e.logger.Info("engine starting",
		"scan_interval", e.cfg.ScanInterval,
		"concurrency_limit", e.cfg.ConcurrencyLimit,
		"call_timeout", e.cfg.CallTimeout,
	)

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	e.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return
		case <-ticker.C:
			// Both cases may be ready at once; cancellation wins.
			if ctx.Err() != nil {
				e.logger.Info("engine stopping: context cancelled")
				return
			}
			e.scan(ctx)
		}
	}
}

// scan runs one draining pass for the loop. Errors are logged and the loop
// continues.
func (e *Engine) scan(ctx context.Context) {
	report, err := e.runScan(ctx, true)
	switch {
	case err != nil && ctx.Err() == nil:
		e.logger.Error("scan failed", "error", err, "report", report)
	case err != nil:
		e.logger.Debug("scan interrupted", "report", report)
	case report.Pending > 0:
		e.logger.Info("scan finished", "report", report)
	default:
		e.logger.Debug("scan finished", "report", report)
	}
}
