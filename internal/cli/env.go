package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/config"
	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/store"
)

// addStoreFlags registers --store and --db, which override store.driver and
// store.path.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "", "store driver (sqlite|bolt|memory)")
	cmd.Flags().String("db", "", "path to the store file")
}

func storeBindings(cmd *cobra.Command) map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"store.driver": cmd.Flags().Lookup("store"),
		"store.path":   cmd.Flags().Lookup("db"),
	}
}

// loadConfig loads the configuration with the given flag overrides.
func loadConfig(rootOpts *RootOptions, bindings map[string]*pflag.Flag) (config.Config, error) {
	cfg, _, err := config.Load(rootOpts.ConfigFile, bindings)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func openStore(cfg config.Config) (store.ClaimStore, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, nil
}

func closeStore(st store.ClaimStore, logger *slog.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing store", "error", err)
	}
}

// newLogger writes structured logs to the command's error stream.
func newLogger(cmd *cobra.Command, rootOpts *RootOptions) *slog.Logger {
	return observability.NewLogger(cmd.ErrOrStderr(), rootOpts.Format, rootOpts.Verbose)
}

func newFormatter(cmd *cobra.Command, rootOpts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}
}

// commandContext returns the command's context, or Background if unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// reportClaimError prints a domain error and converts it into an ExitError.
func reportClaimError(f *OutputFormatter, err error) error {
	var (
		ve  *claim.ValidationError
		dup *claim.DuplicateError
	)
	switch {
	case errors.As(err, &ve):
		_ = f.Error(CodeInvalidInput, err.Error(), map[string]string{"field": ve.Field})
	case errors.As(err, &dup):
		_ = f.Error(CodeDuplicate, err.Error(), map[string]string{"existingId": dup.ExistingID})
	case errors.Is(err, claim.ErrNotFound):
		_ = f.Error(CodeNotFound, err.Error(), nil)
	case errors.Is(err, claim.ErrAlreadyConfirmed):
		_ = f.Error(CodeAlreadyConfirmed, err.Error(), nil)
	case errors.Is(err, claim.ErrTokenAlreadySet):
		_ = f.Error(CodeTokenAlreadySet, err.Error(), nil)
	default:
		return WrapExitError(ExitCommandError, "store error", err)
	}
	return WrapExitError(ExitFailure, "claim rejected", err)
}
