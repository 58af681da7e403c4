package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/youruser/avatarframe/internal/config"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/stats"
)

var (
	headerStyle = lipgloss.NewStyle().Reverse(true).Bold(true)
	totalStyle  = lipgloss.NewStyle().Reverse(true)
)

func newStatsCmd(opts *options) *cobra.Command {
	var (
		logPath  string
		chart    bool
		table    bool
		pretty   bool
		calendar bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count distinct users per day from the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if logPath == "" {
				logPath = cfg.EventLog
			}
			reporter := stats.NewReporter(logPath, stats.NewChartWriter(cfg.ChartFile))

			var agg stats.Aggregate
			if chart {
				agg, err = reporter.Report(ctx)
			} else {
				agg, err = reporter.Aggregate(ctx)
			}
			if err != nil {
				return err
			}
			if chart {
				logging.FromContext(ctx).Info("chart written", "file", reporter.ChartPath(), "total", agg.Total)
			}
			if calendar {
				agg = agg.Sorted()
			}
			if table {
				fmt.Fprint(cmd.OutOrStdout(), formatTable(agg, pretty))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "event log to read (default from config)")
	cmd.Flags().BoolVar(&chart, "chart", true, "write the chart image")
	cmd.Flags().BoolVar(&table, "table", true, "print the table")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "highlight header and total rows")
	cmd.Flags().BoolVar(&calendar, "calendar", false, "order days by date instead of first appearance")
	return cmd
}

func formatTable(agg stats.Aggregate, pretty bool) string {
	if !pretty {
		return stats.RenderTable(agg)
	}
	rows := stats.TableRows(agg)
	var b strings.Builder
	for i, row := range rows {
		switch i {
		case 0:
			row = headerStyle.Render(row)
		case len(rows) - 1:
			row = totalStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}
	return b.String()
}
