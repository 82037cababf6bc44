package dashboard

import (
	"html/template"
	"math"
	"strconv"

	"github.com/hepviz/go-forecast-dashboard/internal/demo"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/normalize"
)

// previewRows caps the tabular preview under the charts.
const previewRows = 10

type pageData struct {
	Title      string
	SourceName string
	DemoMode   bool
	Report     *normalize.Report
	LatestDate string
	LatestMAE  string
	LatestRMSE string
	RowCount   int
	Preview    []models.ForecastRow
	Patients   []demo.Patient
	Warning    string
}

// fmtMetric renders a metric value for display, with NaN shown as n/a.
func fmtMetric(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func newPageData(title, sourceName string, demoMode bool, table *models.ForecastTable, metrics *models.MetricsTable, report *normalize.Report, patients []demo.Patient) pageData {
	data := pageData{
		Title:      title,
		SourceName: sourceName,
		DemoMode:   demoMode,
		Report:     report,
		LatestMAE:  "n/a",
		LatestRMSE: "n/a",
		RowCount:   table.Len(),
		Patients:   patients,
	}

	if latest, ok := metrics.Latest(); ok {
		data.LatestDate = latest.Date.Format(models.DateLayout)
		data.LatestMAE = fmtMetric(latest.MAE)
		data.LatestRMSE = fmtMetric(latest.RMSE)
	}

	n := table.Len()
	if n > previewRows {
		n = previewRows
	}
	data.Preview = table.Rows[:n]

	if report != nil && len(report.NestingViolations) > 0 {
		data.Warning = strconv.Itoa(len(report.NestingViolations)) + " rows have prediction intervals that do not nest"
	}

	return data
}

var pageTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"cell": func(v float64) string {
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"dateCell": func(row models.ForecastRow) string {
		return row.Date.Format(models.DateLayout)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 24px; color: #222; }
.tiles { display: flex; gap: 16px; margin: 16px 0; }
.tile { border: 1px solid #ddd; border-radius: 6px; padding: 12px 20px; min-width: 140px; }
.tile .value { font-size: 1.6em; font-weight: bold; }
.tile .label { color: #777; font-size: 0.85em; }
.warning { background: #fff3cd; border: 1px solid #ffe69c; padding: 8px 12px; border-radius: 4px; margin: 12px 0; }
.demo { background: #e7f1ff; border: 1px solid #b6d4fe; padding: 8px 12px; border-radius: 4px; margin: 12px 0; }
table { border-collapse: collapse; margin: 16px 0; }
th, td { border: 1px solid #ddd; padding: 4px 10px; text-align: right; }
th { background: #f5f5f5; }
td:first-child, th:first-child { text-align: left; }
iframe { border: none; width: 1140px; }
form { margin: 16px 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Source: {{.SourceName}} ({{.RowCount}} rows)</p>
{{if .DemoMode}}<div class="demo">Showing simulated demonstration data.</div>{{end}}
{{if .Warning}}<div class="warning">{{.Warning}}</div>{{end}}

<div class="tiles">
<div class="tile"><div class="value">{{.LatestMAE}}</div><div class="label">MAE (7d){{if .LatestDate}} at {{.LatestDate}}{{end}}</div></div>
<div class="tile"><div class="value">{{.LatestRMSE}}</div><div class="label">RMSE (7d){{if .LatestDate}} at {{.LatestDate}}{{end}}</div></div>
{{if .Report}}<div class="tile"><div class="value">{{.Report.PI80Source}}</div><div class="label">80% interval source</div></div>{{end}}
{{if .Report}}<div class="tile"><div class="value">{{.Report.PI95Source}}</div><div class="label">95% interval source</div></div>{{end}}
</div>

<iframe src="/charts/forecast" height="540"></iframe>
<iframe src="/charts/metrics" height="390"></iframe>

<form action="/upload" method="post" enctype="multipart/form-data">
<label>Upload forecast CSV: <input type="file" name="file" accept=".csv"></label>
<button type="submit">Upload</button>
<a href="/download.csv">Download normalized CSV</a>
<a href="/metrics.csv">Download metrics CSV</a>
</form>

<h2>Preview</h2>
<table>
<tr><th>date</th><th>predicted_median</th><th>actual</th><th>pi80_low</th><th>pi80_high</th><th>pi95_low</th><th>pi95_high</th></tr>
{{range .Preview}}
<tr><td>{{dateCell .}}</td><td>{{cell .PredictedMedian}}</td><td>{{cell .Actual}}</td><td>{{cell .PI80Low}}</td><td>{{cell .PI80High}}</td><td>{{cell .PI95Low}}</td><td>{{cell .PI95High}}</td></tr>
{{end}}
</table>

{{if .Patients}}
<h2>Patient risk (simulated)</h2>
<table>
<tr><th>patient_hash</th><th>date</th><th>predicted_risk</th><th>probability</th><th>top_feature_1</th><th>top_feature_2</th></tr>
{{range .Patients}}
<tr><td>{{.Hash}}</td><td>{{.Date}}</td><td>{{.Risk}}</td><td>{{printf "%.2f" .Probability}}</td><td>{{.TopFeature1}}</td><td>{{.TopFeature2}}</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))
