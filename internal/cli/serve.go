package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/claimrecon/internal/api"
	"github.com/roach88/claimrecon/internal/config"
	"github.com/roach88/claimrecon/internal/engine"
	"github.com/roach88/claimrecon/internal/notify"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/oracle"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation engine and the claim API",
		Long: `Start the reconciliation engine and the HTTP claim API.

The engine scans immediately and then once per scan interval. SIGINT or
SIGTERM stops the API and stops dispatching claims. Oracle calls already
in flight finish and their verdicts are written before the process exits.

Example:
  claimrecon serve --db ./claims.db --addr :8080
  claimrecon serve --store bolt --db ./claims.bolt --oracle-url https://verify.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("oracle-url", "", "verification oracle base URL")
	cmd.Flags().String("notify", "", "confirmation publisher (none|gochannel|amqp)")
	cmd.Flags().String("tracing", "", "trace exporter (none|stdout)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	bindings := storeBindings(cmd)
	bindings["http.addr"] = cmd.Flags().Lookup("addr")
	bindings["oracle.base_url"] = cmd.Flags().Lookup("oracle-url")
	bindings["notify.driver"] = cmd.Flags().Lookup("notify")
	bindings["telemetry.tracing"] = cmd.Flags().Lookup("tracing")

	cfg, err := loadConfig(opts.RootOptions, bindings)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, opts.RootOptions)
	slog.SetDefault(logger)

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing).
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter:       cfg.Telemetry.Tracing,
		ServiceVersion: Version,
		Writer:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
	}()

	logger.Info("opening store", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	orc, engineCfg, err := engineParts(cfg)
	if err != nil {
		return err
	}

	pub, err := notify.Open(cfg.Notify.NotifyConfig())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open notifier", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error("error closing notifier", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	eng, err := engine.New(st, orc, engineCfg,
		engine.WithNotifier(pub),
		engine.WithMetrics(metrics),
		engine.WithTracer(tp.Tracer(observability.ServiceName)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	server := api.NewServer(st,
		api.WithMetrics(metrics),
		api.WithGatherer(reg),
		api.WithTracerProvider(tp),
		api.WithLogger(logger),
	)

	// The audit subscription outlives the signal context: it opens before the
	// first scan and closes only after the engine has drained.
	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()
	audit, err := pub.SubscribeAudit(auditCtx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe audit log", err)
	}
	auditDone := make(chan error, 1)
	go func() { auditDone <- audit.Run(logger) }()

	if err := eng.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start engine", err)
	}
	defer eng.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "claimrecon serving on %s. Press Ctrl-C to stop.\n", cfg.HTTP.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTP.Addr)
	})
	err = g.Wait()

	eng.Stop()
	stopAudit()
	if auditErr := <-auditDone; auditErr != nil {
		logger.Error("audit log failed", "error", auditErr)
	}

	logger.Info("claimrecon stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}

// engineParts builds the oracle and engine tunables from cfg.
func engineParts(cfg config.Config) (oracle.Oracle, engine.Config, error) {
	orc, err := oracle.New(cfg.Oracle.OracleConfig())
	if err != nil {
		return nil, engine.Config{}, WrapExitError(ExitCommandError, "failed to create oracle", err)
	}
	engineCfg, err := cfg.Engine.EngineConfig()
	if err != nil {
		return nil, engine.Config{}, WrapExitError(ExitCommandError, "invalid engine config", err)
	}
	return orc, engineCfg, nil
}
