// Package dashboard renders normalized forecast tables as an interactive
// HTML dashboard: a forecast chart with 80/95 prediction-interval bands,
// rolling accuracy metrics, KPI tiles, and tabular previews. It also serves
// the HTTP surface of the application.
package dashboard

import (
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/hepviz/go-forecast-dashboard/internal/models"
)

// lineData converts a float series to chart points, mapping NaN to the
// echarts missing-value marker so gaps break the line instead of plotting
// zero.
func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: "-"}
		} else {
			data[i] = opts.LineData{Value: v}
		}
	}
	return data
}

func axisDates(table *models.ForecastTable) []string {
	dates := make([]string, table.Len())
	for i, row := range table.Rows {
		dates[i] = row.Date.Format(models.DateLayout)
	}
	return dates
}

// BuildForecastChart builds the main line chart: predicted median and actual
// series plus the four prediction-interval bounds as dashed band edges.
func BuildForecastChart(table *models.ForecastTable) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "1100px",
			Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Forecast vs observed"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	median := make([]float64, table.Len())
	actual := make([]float64, table.Len())
	pi80Low := make([]float64, table.Len())
	pi80High := make([]float64, table.Len())
	pi95Low := make([]float64, table.Len())
	pi95High := make([]float64, table.Len())
	for i, row := range table.Rows {
		median[i] = row.PredictedMedian
		actual[i] = row.Actual
		pi80Low[i] = row.PI80Low
		pi80High[i] = row.PI80High
		pi95Low[i] = row.PI95Low
		pi95High[i] = row.PI95High
	}

	bandStyle := charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: 0.5})

	line.SetXAxis(axisDates(table)).
		AddSeries("predicted_median", lineData(median)).
		AddSeries("actual", lineData(actual)).
		AddSeries("pi80_low", lineData(pi80Low), bandStyle).
		AddSeries("pi80_high", lineData(pi80High), bandStyle).
		AddSeries("pi95_low", lineData(pi95Low), bandStyle).
		AddSeries("pi95_high", lineData(pi95High), bandStyle)

	return line
}

// BuildMetricsChart builds the rolling accuracy chart with per-row absolute
// error and trailing MAE/RMSE.
func BuildMetricsChart(metrics *models.MetricsTable) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "1100px",
			Height: "350px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Rolling accuracy"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
	)

	dates := make([]string, metrics.Len())
	errs := make([]float64, metrics.Len())
	mae := make([]float64, metrics.Len())
	rmse := make([]float64, metrics.Len())
	for i, row := range metrics.Rows {
		dates[i] = row.Date.Format(models.DateLayout)
		errs[i] = row.Error
		mae[i] = row.MAE
		rmse[i] = row.RMSE
	}

	line.SetXAxis(dates).
		AddSeries("error", lineData(errs)).
		AddSeries("MAE", lineData(mae)).
		AddSeries("RMSE", lineData(rmse))

	return line
}

// WriteChartHTML renders both charts as a standalone HTML page, used by the
// render subcommand for file output.
func WriteChartHTML(w io.Writer, table *models.ForecastTable, metrics *models.MetricsTable) error {
	page := components.NewPage()
	page.PageTitle = "Forecast Dashboard"
	page.AddCharts(BuildForecastChart(table), BuildMetricsChart(metrics))
	return page.Render(w)
}
