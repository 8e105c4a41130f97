package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/service"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired breach records and recompute anonymity sets",
		Long: `Cleanup runs one retention pass: breach records past the retention
window are deleted in chunks, the anonymity sets they counted toward
are recomputed, and monitoring targets whose prefix has had no breach
coverage beyond the grace period are removed.

Running cleanup twice in a row is safe; the second pass is a no-op.`,
		RunE: runCleanupCmd,
	}
}

// runCleanupCmd executes the cleanup command.
func runCleanupCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	ctx := context.Background()
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // close on exit

	summary, err := svc.CleanupExpired(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records removed:     %d\n", summary.RecordsRemoved)
	fmt.Fprintf(out, "prefixes recomputed: %d\n", summary.PrefixesRecomputed)
	fmt.Fprintf(out, "orphans removed:     %d\n", summary.OrphansRemoved)
	fmt.Fprintf(out, "duration:            %s\n", summary.FinishedAt.Sub(summary.StartedAt))
	return nil
}
