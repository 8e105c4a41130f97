package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/service"
)

// NewTargetCmd creates the target command group.
func NewTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Manage monitored credentials",
		Long: `Target registers credentials for continuous monitoring. A registered
credential is hashed immediately; only its fixed-length hash prefix is
stored, so the service can never reconstruct what is being watched.
When new breach records matching the prefix are ingested, an alert is
emitted to the configured destination.`,
	}

	cmd.AddCommand(newTargetAddCmd())
	cmd.AddCommand(newTargetRemoveCmd())
	return cmd
}

func newTargetAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [credential]",
		Short: "Register a credential for monitoring",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTargetAddCmd,
	}

	cmd.Flags().StringP("type", "t", string(model.CredentialEmail),
		"Credential type: email, username, phone, or domain")
	cmd.Flags().StringP("destination", "d", "log",
		"Alert destination (e.g. an email address, or \"log\")")
	cmd.Flags().Duration("throttle", time.Hour,
		"Minimum interval between alerts for this target")

	return cmd
}

func runTargetAddCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoCredential
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	credType, err := cmd.Flags().GetString("type")
	if err != nil {
		return err
	}
	destination, err := cmd.Flags().GetString("destination")
	if err != nil {
		return err
	}
	throttle, err := cmd.Flags().GetDuration("throttle")
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // close on exit

	target, err := svc.AddMonitoringTarget(ctx, args[0], model.CredentialType(credType),
		model.AlertConfig{Destination: destination, Throttle: throttle})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "monitoring target registered\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  id:          %s\n", target.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "  hash prefix: %s\n", target.CredentialHashPrefix)
	return nil
}

func newTargetRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [target-id]",
		Short: "Remove a monitored credential by target ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runTargetRemoveCmd,
	}
}

func runTargetRemoveCmd(cmd *cobra.Command, args []string) error {
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

	if err := svc.RemoveMonitoringTarget(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "monitoring target %s removed\n", args[0])
	return nil
}
