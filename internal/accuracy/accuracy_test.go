package accuracy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepviz/go-forecast-dashboard/internal/models"
)

func day(n int) time.Time {
	return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC)
}

func row(n int, predicted, actual float64) models.ForecastRow {
	return models.ForecastRow{
		Date:            day(n),
		PredictedMedian: predicted,
		Actual:          actual,
		PI80Low:         predicted - 1.5,
		PI80High:        predicted + 1.5,
		PI95Low:         predicted - 3,
		PI95High:        predicted + 3,
	}
}

func TestComputeAlignment(t *testing.T) {
	table := &models.ForecastTable{Rows: []models.ForecastRow{
		row(1, 10, 12),
		row(2, 10, math.NaN()),
		row(3, 10, 9),
	}}

	metrics := Compute(table)
	require.Equal(t, table.Len(), metrics.Len())
	for i := range metrics.Rows {
		assert.True(t, metrics.Rows[i].Date.Equal(table.Rows[i].Date))
	}
}

func TestComputeErrorsAndWindow(t *testing.T) {
	// Errors: NaN, 2, 4. The trailing window at the last row skips the
	// missing actual, so MAE = (2+4)/2 and RMSE = sqrt((4+16)/2).
	table := &models.ForecastTable{Rows: []models.ForecastRow{
		row(1, 10, math.NaN()),
		row(2, 10, 12),
		row(3, 10, 14),
	}}

	metrics := Compute(table)
	require.Equal(t, 3, metrics.Len())

	assert.True(t, math.IsNaN(metrics.Rows[0].Error))
	assert.True(t, math.IsNaN(metrics.Rows[0].MAE))
	assert.True(t, math.IsNaN(metrics.Rows[0].RMSE))

	assert.InDelta(t, 2.0, metrics.Rows[1].Error, 1e-12)
	assert.InDelta(t, 2.0, metrics.Rows[1].MAE, 1e-12)
	assert.InDelta(t, 2.0, metrics.Rows[1].RMSE, 1e-12)

	assert.InDelta(t, 4.0, metrics.Rows[2].Error, 1e-12)
	assert.InDelta(t, 3.0, metrics.Rows[2].MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(10), metrics.Rows[2].RMSE, 1e-12)
}

func TestComputeWindowSlides(t *testing.T) {
	rows := make([]models.ForecastRow, 0, 10)
	for i := 1; i <= 10; i++ {
		// Constant error of 1 except day 10, which has error 9.
		actual := 11.0
		if i == 10 {
			actual = 19.0
		}
		rows = append(rows, row(i, 10, actual))
	}
	table := &models.ForecastTable{Rows: rows}

	metrics := Compute(table)
	require.Equal(t, 10, metrics.Len())

	// Rows 7 through 9 cover full windows of constant error 1.
	for i := 6; i < 9; i++ {
		assert.InDelta(t, 1.0, metrics.Rows[i].MAE, 1e-12)
		assert.InDelta(t, 1.0, metrics.Rows[i].RMSE, 1e-12)
	}

	// Last window holds six errors of 1 and one of 9.
	assert.InDelta(t, 15.0/7.0, metrics.Rows[9].MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(87.0/7.0), metrics.Rows[9].RMSE, 1e-12)
}

func TestComputeAllActualsMissing(t *testing.T) {
	table := &models.ForecastTable{Rows: []models.ForecastRow{
		row(1, 10, math.NaN()),
		row(2, 11, math.NaN()),
	}}

	metrics := Compute(table)
	require.Equal(t, 2, metrics.Len())
	for _, m := range metrics.Rows {
		assert.True(t, math.IsNaN(m.Error))
		assert.True(t, math.IsNaN(m.MAE))
		assert.True(t, math.IsNaN(m.RMSE))
	}
}

func TestComputeEmptyTable(t *testing.T) {
	metrics := Compute(&models.ForecastTable{})
	assert.Equal(t, 0, metrics.Len())
}
