package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/service"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate service statistics and health",
		Long: `Stats reports aggregate counters: non-expired breach records,
registered monitoring targets, configured sources, and when retention
cleanup last ran. No per-record or per-prefix data is ever shown.`,
		RunE: runStatsCmd,
	}

	cmd.Flags().BoolP("markdown", "m", false, "Output as a Markdown report")

	return cmd
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // close on exit

	stats, err := svc.GetStatistics(ctx)
	if err != nil {
		return err
	}
	health := svc.HealthCheck(ctx)

	if asMarkdown {
		return writeStatsMarkdown(cmd, stats, health)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total breach records:  %d\n", stats.TotalBreaches)
	fmt.Fprintf(out, "monitored credentials: %d\n", stats.MonitoredCredentials)
	fmt.Fprintf(out, "configured sources:    %d\n", stats.SourcesMonitored)
	fmt.Fprintf(out, "last cleanup:          %s\n", formatLastCleanup(stats))
	fmt.Fprintf(out, "status:                %s\n", health.Status)
	return nil
}

func formatLastCleanup(stats *model.Statistics) string {
	if stats.LastCleanup.IsZero() {
		return "never"
	}
	return stats.LastCleanup.Format("2006-01-02 15:04:05 MST")
}

// writeStatsMarkdown renders the statistics as a Markdown report.
func writeStatsMarkdown(cmd *cobra.Command, stats *model.Statistics, health *model.Health) error {
	md := markdown.NewMarkdown(cmd.OutOrStdout())

	md.H1("breachmon Statistics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total breach records", strconv.Itoa(stats.TotalBreaches)},
			{"Monitored credentials", strconv.Itoa(stats.MonitoredCredentials)},
			{"Configured sources", strconv.Itoa(stats.SourcesMonitored)},
			{"Last cleanup", formatLastCleanup(stats)},
		},
	})
	md.PlainText("")

	md.H2("Health")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Subsystem", "State"},
		Rows: [][]string{
			{"Storage", boolState(health.StorageOK)},
			{"Monitoring", boolState(health.MonitoringActive)},
			{"Overall", string(health.Status)},
		},
	})

	return md.Build()
}

func boolState(ok bool) string {
	if ok {
		return "ok"
	}
	return "down"
}
