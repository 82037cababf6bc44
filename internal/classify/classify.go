// Package classify labels raw table columns as date-like, numeric, or
// numeric-like-string so the normalization pipeline can pick a date axis and
// a prediction column from arbitrary CSV shapes. Classification is a pure
// function over the table's headers and a bounded sample of cell values; it
// always succeeds, possibly with empty candidate sets per role.
package classify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hepviz/go-forecast-dashboard/internal/rawtable"
)

// Role is the classification assigned to a raw table column.
type Role string

const (
	// DateCandidate marks a column whose name suggests a date or period axis.
	DateCandidate Role = "date_candidate"
	// NumericCandidate marks a column whose sampled values all parse as numbers.
	NumericCandidate Role = "numeric_candidate"
	// NumericLikeString marks a non-numeric column that plausibly encodes
	// numbers as text (at least one cell survives stripping to digits, '.', '-').
	NumericLikeString Role = "numeric_like_string"
	// Unclassified marks everything else.
	Unclassified Role = "unclassified"
)

// dateNameHints are matched case-insensitively as substrings of column names.
var dateNameHints = []string{"date", "month", "period", "year"}

// DefaultSampleSize bounds how many cells per column are inspected when
// inferring numeric storage.
const DefaultSampleSize = 50

// Classification holds the role assignment for every column of a raw table.
// Candidate slices preserve the table's column discovery order, which the
// value synthesizer relies on when no preferred name matches.
type Classification struct {
	Roles              map[string]Role
	DateCandidates     []string
	NumericCandidates  []string
	NumericLikeStrings []string
}

// Columns classifies every column of the table. Precedence when a column
// matches several rules: date-like name, then numeric storage, then
// numeric-like text.
func Columns(t *rawtable.Table) *Classification {
	return ColumnsWithSample(t, DefaultSampleSize)
}

// ColumnsWithSample classifies with an explicit per-column sample bound.
func ColumnsWithSample(t *rawtable.Table, sampleSize int) *Classification {
	c := &Classification{Roles: make(map[string]Role, len(t.Columns()))}
	for _, name := range t.Columns() {
		role := classifyColumn(name, t.Sample(name, sampleSize))
		c.Roles[name] = role
		switch role {
		case DateCandidate:
			c.DateCandidates = append(c.DateCandidates, name)
		case NumericCandidate:
			c.NumericCandidates = append(c.NumericCandidates, name)
		case NumericLikeString:
			c.NumericLikeStrings = append(c.NumericLikeStrings, name)
		}
	}
	return c
}

// ValueCandidates returns the prediction-column candidate set: numeric
// columns followed by numeric-like text columns, in discovery order.
func (c *Classification) ValueCandidates() []string {
	out := make([]string, 0, len(c.NumericCandidates)+len(c.NumericLikeStrings))
	out = append(out, c.NumericCandidates...)
	out = append(out, c.NumericLikeStrings...)
	return out
}

func classifyColumn(name string, sample []string) Role {
	lower := strings.ToLower(name)
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return DateCandidate
		}
	}
	if isNumericSample(sample) {
		return NumericCandidate
	}
	if isNumericLike(sample) {
		return NumericLikeString
	}
	return Unclassified
}

// isNumericSample reports whether every non-empty sampled cell parses as a
// number. An all-empty sample is not numeric.
func isNumericSample(sample []string) bool {
	nonEmpty := 0
	for _, cell := range sample {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonEmpty++
		if _, err := decimal.NewFromString(cell); err != nil {
			return false
		}
	}
	return nonEmpty > 0
}

// isNumericLike reports whether at least one cell yields a non-empty string
// after stripping every character that is not a digit, '.', or '-'.
func isNumericLike(sample []string) bool {
	for _, cell := range sample {
		if StripNonNumeric(cell) != "" {
			return true
		}
	}
	return false
}

// StripNonNumeric removes every character that is not a digit, '.', or '-'.
func StripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
