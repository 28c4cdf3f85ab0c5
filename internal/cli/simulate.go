package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/claimrecon/internal/harness"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run a reconciliation scenario against an in-memory store",
		Long: `Run a YAML scenario through the reconciliation engine with a scripted
oracle and an in-memory store, then check its expectations.

Exit code 0 means every expectation held, 1 means at least one failed.

Example:
  claimrecon simulate ./scenarios/retry_then_confirm.yaml
  claimrecon simulate --format json ./scenarios/bounded_concurrency.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)

			scenario, err := harness.LoadScenario(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load scenario", err)
			}
			f.VerboseLog("running scenario %s: %s", scenario.Name, scenario.Description)

			result, err := harness.Run(commandContext(cmd), scenario)
			if err != nil {
				return WrapExitError(ExitCommandError, "scenario aborted", err)
			}

			if err := f.Success(simulationView{Scenario: scenario.Name, Result: result}); err != nil {
				return err
			}
			if !result.Pass {
				return NewExitError(ExitFailure, "scenario "+scenario.Name+" failed")
			}
			return nil
		},
	}
}
