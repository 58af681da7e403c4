package stats

import (
	"context"
	"time"

	"github.com/youruser/avatarframe/internal/logging"
)

// Reporter re-aggregates the event log on demand and refreshes the chart
// file. Runs are independent full scans; only the chart file is shared.
type Reporter struct {
	logPath string
	chart   *ChartWriter
	now     func() time.Time
}

// NewReporter returns a Reporter reading logPath and writing through chart.
func NewReporter(logPath string, chart *ChartWriter) *Reporter {
	return &Reporter{logPath: logPath, chart: chart, now: time.Now}
}

// ChartPath is the file refreshed by Report.
func (r *Reporter) ChartPath() string {
	return r.chart.Path()
}

// Aggregate scans the log without touching the chart.
func (r *Reporter) Aggregate(ctx context.Context) (Aggregate, error) {
	agg, err := Run(r.logPath)
	if err != nil {
		logging.FromContext(ctx).Error("aggregate event log", "path", r.logPath, "err", err)
		return Aggregate{}, err
	}
	if agg.Skipped > 0 {
		logging.FromContext(ctx).Warn("skipped malformed event lines", "count", agg.Skipped)
	}
	return agg, nil
}

// Report aggregates the log and rewrites the chart file.
func (r *Reporter) Report(ctx context.Context) (Aggregate, error) {
	agg, err := r.Aggregate(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	if err := r.chart.Write(RenderChart(agg, r.now())); err != nil {
		logging.FromContext(ctx).Error("write chart", "path", r.chart.Path(), "err", err)
		return Aggregate{}, err
	}
	logging.FromContext(ctx).Debug("chart written", "path", r.chart.Path(), "days", len(agg.Days), "total", agg.Total)
	return agg, nil
}
