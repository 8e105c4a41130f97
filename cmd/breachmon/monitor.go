package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/service"
)

// NewMonitorCmd creates the monitor command.
func NewMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run continuous breach source monitoring",
		Long: `Monitor starts the collection daemon: one worker per configured
source polls for new disclosures under per-source rate limits, and the
retention scheduler periodically removes expired records.

A failing source backs off and retries on its own; it never delays the
other sources. Stop with Ctrl-C.

Examples:
  # Run the daemon with the default sources file
  breachmon monitor

  # One triggered pass over the paste-site sources, then exit
  breachmon monitor --once pastes

  # One triggered pass over the dark-web sources via an external Tor proxy
  breachmon monitor --once darkweb --external-tor 127.0.0.1:9150`,
		RunE: runMonitorCmd,
	}

	cmd.Flags().String("once", "",
		"Run a single pass over one source group (pastes or darkweb), then exit")
	cmd.Flags().StringP("external-tor", "e", "",
		"Use external Tor proxy at specified address (e.g. 127.0.0.1:9150)")
	cmd.Flags().Bool("embedded-tor", false,
		"Start an embedded Tor daemon for dark-web sources")

	return cmd
}

// runMonitorCmd executes the monitor command.
func runMonitorCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	if externalTor, err := cmd.Flags().GetString("external-tor"); err != nil {
		return err
	} else if externalTor != "" {
		cfg.TorProxyAddress = externalTor
	}
	if cfg.UseEmbeddedTor, err = cmd.Flags().GetBool("embedded-tor"); err != nil {
		return err
	}
	once, err := cmd.Flags().GetString("once")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // close on exit

	switch once {
	case "":
		logger.Info("starting continuous monitoring")
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case "pastes":
		n, err := svc.RunPasteSiteMonitoring(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d new records\n", n)
		return err
	case "darkweb":
		n, err := svc.RunDarkwebMonitoring(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d new records\n", n)
		return err
	default:
		return fmt.Errorf("unknown source group %q (want pastes or darkweb)", once)
	}
}
