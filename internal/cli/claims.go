package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/store"
)

// NewClaimsCommand creates the claims command group.
func NewClaimsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Submit and inspect claims",
	}
	cmd.AddCommand(newClaimsSubmitCommand(rootOpts))
	cmd.AddCommand(newClaimsGetCommand(rootOpts))
	cmd.AddCommand(newClaimsListCommand(rootOpts))
	cmd.AddCommand(newClaimsAttachTokenCommand(rootOpts))
	return cmd
}

// withStore loads config, opens the store and runs fn with it.
func withStore(cmd *cobra.Command, rootOpts *RootOptions, fn func(st store.ClaimStore, f *OutputFormatter) error) error {
	cfg, err := loadConfig(rootOpts, storeBindings(cmd))
	if err != nil {
		return err
	}
	logger := newLogger(cmd, rootOpts)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)
	return fn(st, newFormatter(cmd, rootOpts))
}

func newClaimsSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var sub claim.Submission

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new claim",
		Long: `Submit a claim for a subject and claim kind. At most one claim may exist
per subject and kind.

Example:
  claimrecon claims submit --subject user-42 --kind signup --token tx-9f2c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(st store.ClaimStore, f *OutputFormatter) error {
				created, err := store.Submit(commandContext(cmd), st, sub)
				if err != nil {
					return reportClaimError(f, err)
				}
				return f.Success(claimView{created})
			})
		},
	}
	addStoreFlags(cmd)
	cmd.Flags().StringVar(&sub.SubjectID, "subject", "", "subject the claim is for")
	cmd.Flags().StringVar(&sub.Kind, "kind", "", "claim kind")
	cmd.Flags().StringVar(&sub.VerificationToken, "token", "", "verification token (optional)")
	return cmd
}

func newClaimsGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(st store.ClaimStore, f *OutputFormatter) error {
				c, err := st.Get(commandContext(cmd), args[0])
				if err != nil {
					return reportClaimError(f, err)
				}
				return f.Success(claimView{c})
			})
		},
	}
	addStoreFlags(cmd)
	return cmd
}

func newClaimsListCommand(rootOpts *RootOptions) *cobra.Command {
	var rawStatus string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims",
		Long: `List claims, optionally filtered by status. Without --status unconfirmed
claims are listed first.

Example:
  claimrecon claims list --status unconfirmed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := []claim.Status{claim.StatusUnconfirmed, claim.StatusConfirmed}
			if rawStatus != "" {
				s, err := claim.ParseStatus(rawStatus)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --status", err)
				}
				statuses = []claim.Status{s}
			}

			return withStore(cmd, rootOpts, func(st store.ClaimStore, f *OutputFormatter) error {
				var all []claim.Claim
				for _, s := range statuses {
					claims, err := store.List(commandContext(cmd), st, s)
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to list claims", err)
					}
					all = append(all, claims...)
				}
				return f.Success(newClaimList(all))
			})
		},
	}
	addStoreFlags(cmd)
	cmd.Flags().StringVar(&rawStatus, "status", "", "filter by status (unconfirmed|confirmed)")
	return cmd
}

func newClaimsAttachTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach-token <id> <token>",
		Short: "Attach a verification token to an unconfirmed claim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, rootOpts, func(st store.ClaimStore, f *OutputFormatter) error {
				updated, err := store.AttachToken(commandContext(cmd), st, args[0], args[1])
				if err != nil {
					return reportClaimError(f, err)
				}
				return f.Success(claimView{updated})
			})
		},
	}
	addStoreFlags(cmd)
	return cmd
}
