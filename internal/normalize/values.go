package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/hepviz/go-forecast-dashboard/internal/classify"
	"github.com/hepviz/go-forecast-dashboard/internal/rawtable"
)

// Fixed fallback interval widths, used when the prediction series has no
// usable sample standard deviation.
const (
	fallbackWidth80 = 1.5
	fallbackWidth95 = 3.0
)

// valueNameHints select the preferred prediction column, matched
// case-insensitively as substrings in candidate discovery order.
var valueNameHints = []string{
	"forecast", "pred", "median", "value", "count", "case", "cases", "n_", "total",
}

// actualNameHints locate a ground-truth column when none is named "actual".
var actualNameHints = []string{"actual", "observed", "obs", "report"}

// selectValueColumn picks the prediction column from the classifier's
// candidate sets: the first candidate whose name contains a preferred hint,
// else the first candidate in discovery order. ok is false when both
// candidate sets are empty.
func selectValueColumn(c *classify.Classification) (string, bool) {
	candidates := c.ValueCandidates()
	if len(candidates) == 0 {
		return "", false
	}
	for _, name := range candidates {
		lower := strings.ToLower(name)
		for _, hint := range valueNameHints {
			if strings.Contains(lower, hint) {
				return name, true
			}
		}
	}
	return candidates[0], true
}

// detectActualColumn finds a ground-truth column: an exact "actual" match
// first, then the first column whose name contains one of the actual hints.
// The chosen date and prediction columns are never reused as ground truth.
func detectActualColumn(t *rawtable.Table, reserved ...string) (string, bool) {
	isReserved := func(name string) bool {
		for _, r := range reserved {
			if strings.EqualFold(name, r) {
				return true
			}
		}
		return false
	}
	for _, name := range t.Columns() {
		if strings.EqualFold(name, "actual") && !isReserved(name) {
			return name, true
		}
	}
	for _, name := range t.Columns() {
		if isReserved(name) {
			continue
		}
		lower := strings.ToLower(name)
		for _, hint := range actualNameHints {
			if strings.Contains(lower, hint) {
				return name, true
			}
		}
	}
	return "", false
}

// coerceNumeric converts raw cells to floats. Each cell is parsed directly
// first (covering plain and scientific notation); on failure it is retried
// after stripping every character that is not a digit, '.', or '-' (covering
// "1,204 cases" style text). Cells that still fail coerce to NaN.
func coerceNumeric(cells []string) []float64 {
	out := make([]float64, len(cells))
	for i, cell := range cells {
		out[i] = coerceCell(cell)
	}
	return out
}

func coerceCell(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN()
	}
	if d, err := decimal.NewFromString(cell); err == nil {
		return d.InexactFloat64()
	}
	stripped := classify.StripNonNumeric(cell)
	if stripped == "" {
		return math.NaN()
	}
	if d, err := decimal.NewFromString(stripped); err == nil {
		return d.InexactFloat64()
	}
	return math.NaN()
}

// sampleStdDev computes the sample standard deviation of the non-NaN entries.
// It returns NaN when fewer than two usable values exist.
func sampleStdDev(values []float64) float64 {
	usable := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			usable = append(usable, v)
		}
	}
	if len(usable) < 2 {
		return math.NaN()
	}
	return stat.StdDev(usable, nil)
}

// intervalWidths derives the symmetric 80% and 95% interval widths from the
// prediction series: the sample standard deviation (doubled for 95%) when it
// is defined and positive, else the fixed fallback widths. Both widths always
// come from the same basis, which guarantees the nesting invariant for fully
// synthesized intervals.
func intervalWidths(predictions []float64) (width80, width95 float64) {
	sigma := sampleStdDev(predictions)
	if !math.IsNaN(sigma) && sigma > 0 {
		return sigma, 2 * sigma
	}
	return fallbackWidth80, fallbackWidth95
}
