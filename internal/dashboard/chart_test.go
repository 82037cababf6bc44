package dashboard

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepviz/go-forecast-dashboard/internal/accuracy"
	"github.com/hepviz/go-forecast-dashboard/internal/demo"
)

func TestLineDataMissingValues(t *testing.T) {
	data := lineData([]float64{1.5, math.NaN(), 3})
	assert.Equal(t, 1.5, data[0].Value)
	assert.Equal(t, "-", data[1].Value)
	assert.Equal(t, 3.0, data[2].Value)
}

func TestWriteChartHTML(t *testing.T) {
	table := demo.Forecast(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 14, 42)
	metrics := accuracy.Compute(table)

	var buf bytes.Buffer
	require.NoError(t, WriteChartHTML(&buf, table, metrics))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "predicted_median")
	assert.Contains(t, html, "RMSE")
	assert.Contains(t, html, "2025-05-02")
}
