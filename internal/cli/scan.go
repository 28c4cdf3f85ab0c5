package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/claimrecon/internal/engine"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run exactly one reconciliation scan",
		Long: `Run one reconciliation scan against the configured store and oracle,
print the scan report and exit.

Example:
  claimrecon scan --db ./claims.db
  claimrecon scan --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, rootOpts)
		},
	}
	addStoreFlags(cmd)
	cmd.Flags().String("oracle-url", "", "verification oracle base URL")
	return cmd
}

func runScan(cmd *cobra.Command, rootOpts *RootOptions) error {
	bindings := storeBindings(cmd)
	bindings["oracle.base_url"] = cmd.Flags().Lookup("oracle-url")

	cfg, err := loadConfig(rootOpts, bindings)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, rootOpts)
	f := newFormatter(cmd, rootOpts)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	orc, engineCfg, err := engineParts(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(st, orc, engineCfg, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	f.VerboseLog("scanning %s store %s", cfg.Store.Driver, cfg.Store.Path)
	report, err := eng.RunOnce(commandContext(cmd))
	if err != nil {
		_ = f.Error(CodeScanFailed, err.Error(), reportView{report})
		return WrapExitError(ExitFailure, "scan failed", err)
	}
	return f.Success(reportView{report})
}
