// Package main provides the entry point for the breachmon CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/config"
	"github.com/backgroundcheck/breachmon/internal/log"
)

// NewRootCmd creates the root command for breachmon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breachmon",
		Short: "Privacy-preserving breach intelligence service",
		Long: `breachmon monitors public breach disclosure sources and answers
credential exposure checks under a k-anonymity guarantee: a check is
only answered when at least 1000 distinct breach hashes share the
credential's hash prefix, so no answer ever singles out one person.

Credentials are hashed the moment they enter the system. Only hashes
and fixed-length hash prefixes are stored, and every record expires
after the retention window.`,
		Version:       rootVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	cmd.PersistentFlags().String("backend", config.BackendSQLite,
		"Storage backend: sqlite or postgres")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory for the embedded sqlite database")
	cmd.PersistentFlags().String("postgres-dsn", "",
		"Postgres connection string (required with --backend postgres)")
	cmd.PersistentFlags().String("redis", "",
		"Redis address for shared rate-limiter state (optional)")
	cmd.PersistentFlags().StringP("sources", "s", "",
		"Sources file path (default: sources.yml in current or config directory)")

	// Add subcommands
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewTargetCmd())
	cmd.AddCommand(NewMonitorCmd())
	cmd.AddCommand(NewCleanupCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig creates a Config from the persistent flags, loading the
// sources file when one is found.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	var err error
	if cfg.Backend, err = cmd.Flags().GetString("backend"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.PostgresDSN, err = cmd.Flags().GetString("postgres-dsn"); err != nil {
		return nil, err
	}
	if cfg.RedisAddr, err = cmd.Flags().GetString("redis"); err != nil {
		return nil, err
	}
	if cfg.Verbose, err = cmd.Flags().GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.JSONLogs, err = cmd.Flags().GetBool("json-logs"); err != nil {
		return nil, err
	}
	if cfg.SourcesFilePath, err = cmd.Flags().GetString("sources"); err != nil {
		return nil, err
	}

	// An explicitly specified sources file must exist; otherwise a
	// missing file just means no sources are configured yet.
	explicit := cfg.SourcesFilePath != ""
	path := config.FindSourcesFile(cfg.SourcesFilePath)
	if path != "" {
		cfg.Sources, err = config.LoadSourcesFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load sources file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("%w: %s", config.ErrSourcesFileNotFound, cfg.SourcesFilePath)
	}

	return cfg, nil
}

// setupLogger creates the redacting structured logger and installs it
// as the default.
func setupLogger(cfg *config.Config) *slog.Logger {
	var logger *slog.Logger
	if cfg.JSONLogs {
		logger = log.NewJSON(os.Stderr, cfg.Verbose)
	} else {
		logger = log.New(os.Stderr, cfg.Verbose)
	}
	slog.SetDefault(logger)
	return logger
}

// errNoCredential is returned when a command that needs a credential
// argument receives none.
var errNoCredential = errors.New("no credential provided")
