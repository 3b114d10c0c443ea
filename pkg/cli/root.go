package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// cliUser is recorded as the editor for changes made from the command line.
var cliUser = domain.User{ID: "cli", Name: "command line", Roles: []string{"admin"}}

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	ConfigPath string
	Config     *config.Config
}

// NewRootCommand creates the root command for the picocrud CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "picocrud",
		Short:         "picocrud - nested child collection service",
		Long:          "Serve and operate parent resources and their child collections over REST, gRPC, WebSocket and Redis.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if err := logger.Init(cfg.Log.Mode, cfg.Log.Level); err != nil {
				return WrapExitError(ExitCommandError, "init logger", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewResourceCommand(opts))
	cmd.AddCommand(NewChildCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "picocrud %s\n", Version)
		},
	}
}
