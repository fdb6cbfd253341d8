package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"

	"github.com/ironsheep/traffic-violations-mcp/internal/session"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// RenderDashboard writes an HTML page with the violation distribution and
// the per-day records and violations of a session.
func RenderDashboard(w io.Writer, title string, stats session.Stats) error {
	subtitle := fmt.Sprintf("processed=%d violations=%d fines=%d rate=%.1f%%",
		stats.TotalProcessed, stats.TotalViolations, stats.TotalFines, stats.ViolationRate)
	if stats.SyntheticRecords > 0 {
		subtitle += fmt.Sprintf(" synthetic=%d", stats.SyntheticRecords)
	}

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(distributionChart(title, subtitle, stats), timelineChart(stats))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}

func distributionChart(title, subtitle string, stats session.Stats) *charts.Pie {
	// Fined tags only, in display order.
	known := lo.Filter(violation.ViolationTags, func(t violation.Tag, _ int) bool {
		return stats.PerType[t] > 0
	})
	data := lo.Map(known, func(t violation.Tag, _ int) opts.PieData {
		return opts.PieData{Name: string(t), Value: stats.PerType[t]}
	})

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Violation Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)
	pie.AddSeries("tags", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)
	return pie
}

func timelineChart(stats session.Stats) *charts.Line {
	dates := lo.Map(stats.Timeline, func(d session.DateCount, _ int) string { return d.Date })
	records := lo.Map(stats.Timeline, func(d session.DateCount, _ int) opts.LineData {
		return opts.LineData{Value: d.Count}
	})
	violations := lo.Map(stats.Timeline, func(d session.DateCount, _ int) opts.LineData {
		return opts.LineData{Value: d.Violations}
	})

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Records and Violations Over Time"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Records"}),
	)
	line.SetXAxis(dates).
		AddSeries("records", records,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("violations", violations,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return line
}
