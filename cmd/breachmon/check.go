package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/service"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [credential]",
		Short: "Check whether a credential appears in known breaches",
		Long: `Check answers a k-anonymity credential exposure query.

The credential is hashed locally and only aggregate statistics over all
breach hashes sharing its prefix are disclosed. When fewer than the
minimum number of distinct hashes share the prefix, the check refuses
rather than risk identifying one person's data.

Examples:
  # Check an email address
  breachmon check someone@example.com

  # Check a username
  breachmon check --type username someuser

  # Machine-readable output
  breachmon check --json someone@example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("type", "t", string(model.CredentialEmail),
		"Credential type: email, username, phone, or domain")
	cmd.Flags().BoolP("json", "j", false, "Output the result as JSON")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
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
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // close on exit

	result, err := svc.CheckCredential(ctx, args[0], model.CredentialType(credType))
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
	}
	printCheckResult(cmd, result)
	return nil
}

func printCheckResult(cmd *cobra.Command, result model.CheckResult) {
	out := cmd.OutOrStdout()
	if !result.PrivacyCompliant {
		fmt.Fprintln(out, "check refused:", result.Reason)
		fmt.Fprintln(out, "Not enough distinct breach hashes share this credential's prefix")
		fmt.Fprintln(out, "to answer without risking identification. No data was disclosed.")
		return
	}

	fmt.Fprintf(out, "hash prefix:        %s\n", result.HashPrefix)
	fmt.Fprintf(out, "anonymity set size: %d\n", result.SetSize)
	fmt.Fprintf(out, "breach probability: %.2f\n", result.BreachProbability)
	fmt.Fprintf(out, "last updated:       %s\n", result.LastChecked.Format("2006-01-02 15:04:05 MST"))
}
