// Package cli implements the avatarframe command line: the HTTP server,
// one-off rendering, and the daily statistics report.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/youruser/avatarframe/internal/config"
	"github.com/youruser/avatarframe/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersion sets the version information shown by --version.
func SetVersion(v, c string) {
	version = v
	commit = c
}

// options are the persistent flags shared by every command.
type options struct {
	verbose    bool
	configPath string
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "avatarframe",
		Short:        "Frame user photos with predefined templates",
		Long:         `avatarframe composites a user's photo onto every template of a fixed catalog and reports daily usage from its event log.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if opts.verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), logging.New(os.Stderr, level)))
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("avatarframe %s (%s)\n", version, commit))
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+")")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newRenderCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	return root
}
