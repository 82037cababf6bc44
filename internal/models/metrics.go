package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// MetricsColumns is the fixed column set of a serialized metrics table.
var MetricsColumns = []string{"date", "error", "MAE", "RMSE"}

// MetricsRow holds the rolling accuracy metrics derived from one forecast
// row. Error is NaN when the bucket has no ground truth; MAE and RMSE are NaN
// when the trailing window contains no usable errors at all.
type MetricsRow struct {
	Date  time.Time `json:"date"`
	Error float64   `json:"error"`
	MAE   float64   `json:"mae"`
	RMSE  float64   `json:"rmse"`
}

// MetricsTable is a sequence of metrics rows aligned row-for-row with the
// forecast table it was derived from.
type MetricsTable struct {
	Rows []MetricsRow `json:"rows"`
}

// Len returns the number of rows in the table.
func (t *MetricsTable) Len() int {
	return len(t.Rows)
}

// Latest returns the last row of the table, or false when the table is empty.
func (t *MetricsTable) Latest() (MetricsRow, bool) {
	if len(t.Rows) == 0 {
		return MetricsRow{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// WriteCSV serializes the metrics table. NaN values become empty cells, dates
// use the canonical YYYY-MM-DD format.
func (t *MetricsTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MetricsColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range t.Rows {
		r := &t.Rows[i]
		record := []string{
			r.Date.Format(DateLayout),
			formatValue(r.Error),
			formatValue(r.MAE),
			formatValue(r.RMSE),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
