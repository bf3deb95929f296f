// Package cmd provides the CLI commands for searchapi.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/logging"
	"github.com/Aman-CERP/searchapi/internal/profiling"
	"github.com/Aman-CERP/searchapi/pkg/version"
)

// Global flags.
var (
	configPath string
	debugMode  bool
	plainMode  bool
	noColor    bool

	profileOpts    profiling.Options
	profileSession *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for searchapi CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchapi",
		Short: "Configurable search indexes over local datasources",
		Long: `searchapi indexes items from configured datasources (files, JSON,
YAML or TOML records) into search servers and queries them.

Indexes, servers and datasources are declared in searchapi.yaml.
Run 'searchapi config init' to create a starter configuration.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("searchapi version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (default: ./searchapi.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.searchapi/logs/")
	cmd.PersistentFlags().BoolVar(&plainMode, "plain", false, "Plain text progress output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colors")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newRebuildTrackingCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFieldsCmd())
	cmd.AddCommand(newTrackCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the default logger (warnings to stderr,
// or debug output to a rotating log file with --debug) and starts the
// requested profiles.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}
	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = session
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profileSession.Stop()
	profileSession = nil
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure the way the errors
// package formats it for terminals.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		slog.Debug("command_failed", errors.LogAttrs(err)...)
		fmt.Fprint(cmd.ErrOrStderr(), errors.FormatForCLI(err))
	}
	return err
}
