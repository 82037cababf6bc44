// Package normalize implements the forecast-data normalization and
// interval-reconciliation pipeline: column autodetection, date parsing with
// layered fallbacks, synthetic uncertainty-interval generation when bounds
// are absent, and assembly of the canonical forecast table.
//
// The pipeline is synchronous, deterministic, and seed-free. A single call
// consumes one raw table and produces a fresh canonical table; terminal
// failures propagate as pipeline errors and the caller decides whether to
// substitute demo data.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hepviz/go-forecast-dashboard/internal/classify"
	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/rawtable"
)

// Options carries the human-in-the-loop overrides on top of automatic column
// selection. Empty fields mean "autodetect".
type Options struct {
	// DateColumn forces the date/period source column.
	DateColumn string
	// ValueColumn forces the prediction column.
	ValueColumn string
	// SampleSize bounds per-column sampling during classification;
	// zero uses the classifier default.
	SampleSize int
}

// Report describes what a normalization run decided and dropped. It is the
// data-quality surface for callers: non-empty NestingViolations mean the
// table carries intervals that must be treated as suspect, not a crash.
type Report struct {
	DateColumn   string      `json:"date_column"`
	ValueColumn  string      `json:"value_column"`
	ActualColumn string      `json:"actual_column,omitempty"`
	PI80Source   BoundSource `json:"pi80_source"`
	PI95Source   BoundSource `json:"pi95_source"`

	RowsIn                int `json:"rows_in"`
	RowsOut               int `json:"rows_out"`
	DroppedUnresolvedDate int `json:"dropped_unresolved_date"`
	DroppedUnresolvedVal  int `json:"dropped_unresolved_value"`
	DroppedUnusableBound  int `json:"dropped_unusable_bound"`
	DuplicateDatesDropped int `json:"duplicate_dates_dropped"`

	NestingViolations []time.Time `json:"nesting_violations,omitempty"`
}

// BoundSource records where an interval's bounds came from.
type BoundSource string

const (
	// BoundSupplied means the raw table carried the bound columns.
	BoundSupplied BoundSource = "supplied"
	// BoundSynthesized means the bounds were derived from the prediction series.
	BoundSynthesized BoundSource = "synthesized"
)

// Normalizer orchestrates classification, date resolution, and value/interval
// synthesis into the canonical forecast table.
type Normalizer struct {
	logger     *slog.Logger
	sampleSize int
}

// New creates a Normalizer. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger, sampleSize: classify.DefaultSampleSize}
}

// Normalize runs the full pipeline over a raw table and returns the canonical
// table plus a report. Terminal errors: missing_required_column when no
// usable prediction column exists, date_resolution when no row's date can be
// resolved, empty_result when validation drops every row.
func (n *Normalizer) Normalize(t *rawtable.Table, opts Options) (*models.ForecastTable, *Report, error) {
	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = n.sampleSize
	}
	classification := classify.ColumnsWithSample(t, sampleSize)

	report := &Report{RowsIn: t.NumRows()}

	// Date axis.
	dateColumn, err := n.chooseDateColumn(t, classification, opts)
	if err != nil {
		return nil, nil, err
	}
	report.DateColumn = dateColumn

	dateCells, _ := t.Column(dateColumn)
	dates, resolved := resolveDates(dateCells)
	if resolved == 0 {
		return nil, nil, pipeerr.NewDateResolution(dateColumn,
			"no row could be resolved to a calendar date")
	}
	report.DroppedUnresolvedDate = len(dates) - resolved

	// Prediction column.
	valueColumn, err := n.chooseValueColumn(t, classification, opts)
	if err != nil {
		return nil, nil, err
	}
	report.ValueColumn = valueColumn

	valueCells, _ := t.Column(valueColumn)
	predictions := coerceNumeric(valueCells)

	// Ground truth.
	actuals := make([]float64, t.NumRows())
	for i := range actuals {
		actuals[i] = math.NaN()
	}
	if name, ok := detectActualColumn(t, valueColumn, dateColumn); ok {
		report.ActualColumn = name
		cells, _ := t.Column(name)
		actuals = coerceNumeric(cells)
	}

	// Interval bounds: carried from the source when present, synthesized
	// from the prediction series otherwise.
	width80, width95 := intervalWidths(predictions)
	pi80Low, pi80High, pi80Supplied := n.resolveBounds(t, "pi80_low", "pi80_high", predictions, width80)
	pi95Low, pi95High, pi95Supplied := n.resolveBounds(t, "pi95_low", "pi95_high", predictions, width95)
	report.PI80Source = boundSource(pi80Supplied)
	report.PI95Source = boundSource(pi95Supplied)

	// Assemble, dropping rows without a resolved date or prediction.
	table := &models.ForecastTable{}
	for i := 0; i < t.NumRows(); i++ {
		if dates[i].IsZero() {
			continue
		}
		if math.IsNaN(predictions[i]) {
			report.DroppedUnresolvedVal++
			continue
		}
		row := models.ForecastRow{
			Date:            dates[i],
			PredictedMedian: predictions[i],
			Actual:          actuals[i],
			PI80Low:         pi80Low[i],
			PI80High:        pi80High[i],
			PI95Low:         pi95Low[i],
			PI95High:        pi95High[i],
		}
		// Supplied bounds may fail numeric coercion on individual rows;
		// such rows cannot satisfy the canonical schema and are dropped.
		if math.IsNaN(row.PI80Low) || math.IsNaN(row.PI80High) ||
			math.IsNaN(row.PI95Low) || math.IsNaN(row.PI95High) {
			report.DroppedUnusableBound++
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	if table.Len() == 0 {
		return nil, nil, pipeerr.NewEmptyResult(fmt.Sprintf(
			"validation removed all %d rows (unresolved dates: %d, unresolved values: %d)",
			report.RowsIn, report.DroppedUnresolvedDate, report.DroppedUnresolvedVal))
	}

	table.Sort()
	table.Rows, report.DuplicateDatesDropped = dropDuplicateDates(table.Rows)
	report.RowsOut = table.Len()

	// Mixed supplied/synthesized intervals are not guaranteed to nest;
	// violations are a data-quality signal, never a failure.
	report.NestingViolations = table.NestingViolations()
	if len(report.NestingViolations) > 0 {
		n.logger.Warn("interval nesting invariant violated",
			"rows", len(report.NestingViolations),
			"pi80_source", report.PI80Source,
			"pi95_source", report.PI95Source)
	}

	n.logger.Info("normalized forecast table",
		"date_column", report.DateColumn,
		"value_column", report.ValueColumn,
		"actual_column", report.ActualColumn,
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"duplicates_dropped", report.DuplicateDatesDropped)

	return table, report, nil
}

// chooseDateColumn applies the override, then the first date candidate, then
// any column at all (matching the source's permissive fallback).
func (n *Normalizer) chooseDateColumn(t *rawtable.Table, c *classify.Classification, opts Options) (string, error) {
	if opts.DateColumn != "" {
		if !t.HasColumn(opts.DateColumn) {
			return "", pipeerr.NewDateResolution(opts.DateColumn, "override date column not found in source")
		}
		return opts.DateColumn, nil
	}
	if len(c.DateCandidates) > 0 {
		return c.DateCandidates[0], nil
	}
	cols := t.Columns()
	if len(cols) == 0 {
		return "", pipeerr.NewDateResolution("", "source table has no columns")
	}
	n.logger.Debug("no date-like column detected, trying first column", "column", cols[0])
	return cols[0], nil
}

// chooseValueColumn applies the override, then the classifier's preferred
// candidate.
func (n *Normalizer) chooseValueColumn(t *rawtable.Table, c *classify.Classification, opts Options) (string, error) {
	if opts.ValueColumn != "" {
		if !t.HasColumn(opts.ValueColumn) {
			return "", pipeerr.NewMissingRequiredColumn(
				fmt.Sprintf("override value column %q not found in source", opts.ValueColumn))
		}
		return opts.ValueColumn, nil
	}
	name, ok := selectValueColumn(c)
	if !ok {
		return "", pipeerr.NewMissingRequiredColumn("no numeric or numeric-like column found to use as predicted_median")
	}
	return name, nil
}

// resolveBounds returns per-row interval bounds: the coerced source columns
// when both are present, else symmetric synthesized bounds around the
// prediction.
func (n *Normalizer) resolveBounds(t *rawtable.Table, lowName, highName string, predictions []float64, width float64) (low, high []float64, supplied bool) {
	if t.HasColumn(lowName) && t.HasColumn(highName) {
		lowCells, _ := t.Column(lowName)
		highCells, _ := t.Column(highName)
		return coerceNumeric(lowCells), coerceNumeric(highCells), true
	}
	low = make([]float64, len(predictions))
	high = make([]float64, len(predictions))
	for i, p := range predictions {
		low[i] = p - width
		high[i] = p + width
	}
	return low, high, false
}

// dropDuplicateDates keeps the first occurrence of each date in a sorted row
// slice. Keep-first is a defined policy carried over from the source; sources
// with legitimate revisions may want last-wins instead.
func dropDuplicateDates(rows []models.ForecastRow) ([]models.ForecastRow, int) {
	if len(rows) < 2 {
		return rows, 0
	}
	out := rows[:1]
	dropped := 0
	for _, row := range rows[1:] {
		if row.Date.Equal(out[len(out)-1].Date) {
			dropped++
			continue
		}
		out = append(out, row)
	}
	return out, dropped
}

func boundSource(supplied bool) BoundSource {
	if supplied {
		return BoundSupplied
	}
	return BoundSynthesized
}
