// Package demo generates deterministic sample data for the dashboard: a
// simulated forecast series used when no real source is configured, and a
// synthetic patient risk table. Generation is seeded so the same inputs
// always produce the same tables.
package demo

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hepviz/go-forecast-dashboard/internal/models"
)

const (
	// Interval half-widths for the simulated series.
	demoPI80Width = 1.5
	demoPI95Width = 3.0

	// The simulated series begins this many days before the requested
	// anchor so the chart opens with observed history.
	historyDays = 30
)

// Forecast generates a simulated daily forecast series anchored at start.
// Actuals follow a half sine wave around a base rate of 10 with unit noise,
// clipped at zero; predictions track the actuals with a small positive bias.
func Forecast(start time.Time, days int, seed int64) *models.ForecastTable {
	if days <= 0 {
		return &models.ForecastTable{}
	}

	src := rand.NewPCG(uint64(seed), uint64(seed))
	unitNoise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	biasNoise := distuv.Normal{Mu: 0.5, Sigma: 1, Src: src}

	first := start.AddDate(0, 0, -historyDays)
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)

	table := &models.ForecastTable{Rows: make([]models.ForecastRow, 0, days)}
	for i := 0; i < days; i++ {
		phase := 0.0
		if days > 1 {
			phase = math.Pi * float64(i) / float64(days-1)
		}
		actual := math.Round(10 + math.Sin(phase)*4 + unitNoise.Rand())
		if actual < 0 {
			actual = 0
		}
		predicted := actual + biasNoise.Rand()

		table.Rows = append(table.Rows, models.ForecastRow{
			Date:            first.AddDate(0, 0, i),
			PredictedMedian: predicted,
			Actual:          actual,
			PI80Low:         predicted - demoPI80Width,
			PI80High:        predicted + demoPI80Width,
			PI95Low:         predicted - demoPI95Width,
			PI95High:        predicted + demoPI95Width,
		})
	}
	return table
}
