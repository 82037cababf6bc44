// Package accuracy computes rolling forecast accuracy metrics over the
// canonical forecast table: per-row absolute error plus MAE and RMSE over a
// fixed trailing window, tolerant of missing ground truth.
package accuracy

import (
	"math"

	"github.com/hepviz/go-forecast-dashboard/internal/models"
)

// WindowSize is the fixed trailing window (in rows, inclusive of the current
// row) used for MAE and RMSE. It is a design parameter, not user-configurable;
// surrounding UI may expose its own windowing on top.
const WindowSize = 7

// Compute derives a metrics row for every forecast row. The output is aligned
// row-for-row with the input and is deterministic: recompute whenever the
// forecast table changes.
//
// For each row i:
//
//	error[i] = |actual[i] - predicted_median[i]|, NaN when actual is missing
//	MAE[i]   = mean of non-NaN errors in the trailing window ending at i
//	RMSE[i]  = sqrt of the mean of squared non-NaN errors over the same window
//
// A window with no non-NaN errors yields NaN for both aggregates.
func Compute(table *models.ForecastTable) *models.MetricsTable {
	metrics := &models.MetricsTable{Rows: make([]models.MetricsRow, 0, table.Len())}

	errors := make([]float64, table.Len())
	for i := range table.Rows {
		errors[i] = table.Rows[i].AbsoluteError()
	}

	for i := range table.Rows {
		start := i - WindowSize + 1
		if start < 0 {
			start = 0
		}
		mae, rmse := windowAggregates(errors[start : i+1])
		metrics.Rows = append(metrics.Rows, models.MetricsRow{
			Date:  table.Rows[i].Date,
			Error: errors[i],
			MAE:   mae,
			RMSE:  rmse,
		})
	}
	return metrics
}

// windowAggregates averages the non-NaN entries of one trailing window.
func windowAggregates(window []float64) (mae, rmse float64) {
	var sum, sumSquares float64
	count := 0
	for _, e := range window {
		if math.IsNaN(e) {
			continue
		}
		sum += e
		sumSquares += e * e
		count++
	}
	if count == 0 {
		return math.NaN(), math.NaN()
	}
	n := float64(count)
	return sum / n, math.Sqrt(sumSquares / n)
}
