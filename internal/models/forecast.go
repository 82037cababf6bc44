// Package models provides data structures and validation for normalized forecast data.
// This package contains the canonical forecast schema shared by every downstream
// consumer (charts, KPI tiles, accuracy metrics) along with CSV serialization
// that round-trips through the normalization pipeline.
package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// DateLayout is the calendar date format used for canonical serialization.
const DateLayout = "2006-01-02"

// CanonicalColumns is the fixed, guaranteed column set of a serialized
// forecast table, in order.
var CanonicalColumns = []string{
	"date", "predicted_median", "actual",
	"pi80_low", "pi80_high", "pi95_low", "pi95_high",
}

// ForecastRow is one normalized forecast observation for a single time bucket.
// Actual is NaN when no ground truth exists for the bucket. The prediction
// interval bounds are either carried from the source table or synthesized by
// the normalization pipeline.
type ForecastRow struct {
	Date            time.Time `json:"date"`
	PredictedMedian float64   `json:"predicted_median"`
	Actual          float64   `json:"actual"`
	PI80Low         float64   `json:"pi80_low"`
	PI80High        float64   `json:"pi80_high"`
	PI95Low         float64   `json:"pi95_low"`
	PI95High        float64   `json:"pi95_high"`
}

// ValidationError represents a forecast row validation error with field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message describes the validation failure
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the structural invariants of a single row: a non-zero date,
// a numeric (non-NaN) predicted median, and finite interval bounds wherever
// they are present. Interval nesting is a data-quality concern, not a
// validation failure; see NestingViolated.
func (r *ForecastRow) Validate() error {
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "date cannot be zero"}
	}
	if math.IsNaN(r.PredictedMedian) {
		return &ValidationError{Field: "predicted_median", Message: "predicted median cannot be NaN"}
	}
	if math.IsInf(r.PredictedMedian, 0) {
		return &ValidationError{Field: "predicted_median", Message: "predicted median cannot be infinite"}
	}
	for _, b := range []struct {
		field string
		value float64
	}{
		{"pi80_low", r.PI80Low},
		{"pi80_high", r.PI80High},
		{"pi95_low", r.PI95Low},
		{"pi95_high", r.PI95High},
	} {
		if math.IsNaN(b.value) {
			return &ValidationError{Field: b.field, Message: "interval bound cannot be NaN"}
		}
		if math.IsInf(b.value, 0) {
			return &ValidationError{Field: b.field, Message: "interval bound cannot be infinite"}
		}
	}
	return nil
}

// NestingViolated reports whether the row breaks the interval nesting
// invariant: pi95_low <= pi80_low <= predicted_median <= pi80_high <= pi95_high.
// Rows where both intervals were synthesized from the same basis never
// violate it; mixed user-supplied and synthesized intervals may.
func (r *ForecastRow) NestingViolated() bool {
	return r.PI95Low > r.PI80Low ||
		r.PI80Low > r.PredictedMedian ||
		r.PredictedMedian > r.PI80High ||
		r.PI80High > r.PI95High
}

// HasActual reports whether ground truth exists for this bucket.
func (r *ForecastRow) HasActual() bool {
	return !math.IsNaN(r.Actual)
}

// AbsoluteError returns |actual - predicted_median|, or NaN when no ground
// truth exists.
func (r *ForecastRow) AbsoluteError() float64 {
	if !r.HasActual() {
		return math.NaN()
	}
	return math.Abs(r.Actual - r.PredictedMedian)
}

// String returns a human-readable representation of the row.
func (r *ForecastRow) String() string {
	return fmt.Sprintf("ForecastRow{Date: %s, Median: %s, Actual: %s, PI80: [%s, %s], PI95: [%s, %s]}",
		r.Date.Format(DateLayout),
		formatValue(r.PredictedMedian), formatValue(r.Actual),
		formatValue(r.PI80Low), formatValue(r.PI80High),
		formatValue(r.PI95Low), formatValue(r.PI95High))
}

// ForecastTable is an ordered sequence of forecast rows, sorted ascending by
// date with no duplicate dates once normalized.
type ForecastTable struct {
	Rows []ForecastRow `json:"rows"`
}

// Len returns the number of rows in the table.
func (t *ForecastTable) Len() int {
	return len(t.Rows)
}

// Sort orders the table ascending by date. The sort is stable so that the
// first occurrence of a duplicated date stays first.
func (t *ForecastTable) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Date.Before(t.Rows[j].Date)
	})
}

// Validate checks the table-level invariants: every row valid, dates strictly
// increasing, no duplicates.
func (t *ForecastTable) Validate() error {
	for i := range t.Rows {
		if err := t.Rows[i].Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	for i := 1; i < len(t.Rows); i++ {
		prev, cur := t.Rows[i-1].Date, t.Rows[i].Date
		if cur.Equal(prev) {
			return &ValidationError{Field: "date", Message: fmt.Sprintf("duplicate date %s at row %d", cur.Format(DateLayout), i)}
		}
		if cur.Before(prev) {
			return &ValidationError{Field: "date", Message: fmt.Sprintf("dates not ascending at row %d (%s before %s)", i, cur.Format(DateLayout), prev.Format(DateLayout))}
		}
	}
	return nil
}

// NestingViolations returns the dates of all rows violating the interval
// nesting invariant. A non-empty result is a data-quality signal, not an
// error.
func (t *ForecastTable) NestingViolations() []time.Time {
	var violations []time.Time
	for i := range t.Rows {
		if t.Rows[i].NestingViolated() {
			violations = append(violations, t.Rows[i].Date)
		}
	}
	return violations
}

// Latest returns the last row of the table, or false when the table is empty.
func (t *ForecastTable) Latest() (ForecastRow, bool) {
	if len(t.Rows) == 0 {
		return ForecastRow{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// WriteCSV serializes the table with the canonical column set. Dates are
// formatted as YYYY-MM-DD and NaN values become empty cells, so a serialized
// table re-parses through the normalizer into an identical table.
func (t *ForecastTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range t.Rows {
		r := &t.Rows[i]
		record := []string{
			r.Date.Format(DateLayout),
			formatValue(r.PredictedMedian),
			formatValue(r.Actual),
			formatValue(r.PI80Low),
			formatValue(r.PI80High),
			formatValue(r.PI95Low),
			formatValue(r.PI95High),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadForecastCSV parses a table previously produced by WriteCSV. Unlike the
// normalization pipeline it requires the exact canonical column set and
// performs no heuristics.
func ReadForecastCSV(r io.Reader) (*ForecastTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(CanonicalColumns) {
		return nil, fmt.Errorf("expected %d canonical columns, got %d", len(CanonicalColumns), len(header))
	}
	for i, name := range header {
		if name != CanonicalColumns[i] {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i, CanonicalColumns[i], name)
		}
	}

	table := &ForecastTable{}
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		date, err := time.Parse(DateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", row+2, record[0], err)
		}
		values := make([]float64, 6)
		for j := 1; j < len(record); j++ {
			v, err := parseValue(record[j])
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", row+2, CanonicalColumns[j], record[j], err)
			}
			values[j-1] = v
		}
		table.Rows = append(table.Rows, ForecastRow{
			Date:            date,
			PredictedMedian: values[0],
			Actual:          values[1],
			PI80Low:         values[2],
			PI80High:        values[3],
			PI95Low:         values[4],
			PI95High:        values[5],
		})
	}
	return table, nil
}

// formatValue renders a float for canonical CSV output. NaN becomes an empty
// cell; everything else uses the shortest decimal representation without an
// exponent so that values survive re-ingestion.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseValue is the inverse of formatValue: empty cells become NaN.
func parseValue(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
