package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/roach88/claimrecon/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigInitCommand(rootOpts))
	return cmd
}

// yamlText prints pre-rendered YAML in text mode.
type yamlText string

func (y yamlText) String() string { return string(y) }

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file and
CLAIMRECON_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, used, err := config.Load(rootOpts.ConfigFile, nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			f := newFormatter(cmd, rootOpts)
			if used != "" {
				f.VerboseLog("config file: %s", used)
			}

			if rootOpts.Format == "json" {
				return f.Success(cfg)
			}
			var buf bytes.Buffer
			if err := config.WriteYAML(&buf, cfg); err != nil {
				return WrapExitError(ExitCommandError, "failed to render config", err)
			}
			return f.Success(yamlText(buf.String()))
		},
	}
}

type initResult struct {
	Path string `json:"path"`
}

func (r initResult) String() string { return "wrote " + r.Path + "\n" }

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration to --config, or to
$HOME/.claimrecon/config.yaml. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigFile
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return WrapExitError(ExitCommandError, "failed to resolve config path", err)
				}
			}
			if err := config.Init(path); err != nil {
				return WrapExitError(ExitCommandError, "failed to write config", err)
			}
			return newFormatter(cmd, rootOpts).Success(initResult{Path: path})
		},
	}
}
