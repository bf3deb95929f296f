package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the searchapi configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/searchapi/config.yaml)
  3. Project config (searchapi.yaml)
  4. Environment variables (SEARCHAPI_*)`,
		Example: `  # Create a starter project configuration
  searchapi config init

  # Show effective configuration (merged from all sources)
  searchapi config show

  # Print configuration file paths
  searchapi config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter project configuration",
		Long: `Create searchapi.yaml in the current directory with one Bleve server,
a file datasource over ./docs and an index over it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := configPath
	if path == "" {
		dir, err := os.Getwd()
		if err != nil {
			return errors.InternalError("failed to get working directory", err)
		}
		path = filepath.Join(dir, config.FileNames[0])
	}
	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("Configuration already exists: %s", path)
		out.Status("", "Use --force to overwrite")
		return nil
	}

	if err := config.Example().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Created %s", path)
	out.Status("", "Edit datasources and indexes, then run 'searchapi index'")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			project := configPath
			if project == "" {
				dir, err := os.Getwd()
				if err != nil {
					return errors.InternalError("failed to get working directory", err)
				}
				project = config.FindConfigFile(dir)
			}
			if project == "" {
				project = "(none)"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "project: %s\nuser:    %s\n", project, config.GetUserConfigPath())
			return err
		},
	}
}
