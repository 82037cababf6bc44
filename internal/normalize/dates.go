package normalize

import (
	"strings"
	"time"
)

// dateLayouts are the calendar-date formats attempted, in order, when
// resolving a raw date column. All resolved dates are truncated to midnight
// UTC since the canonical schema is timezone-naive.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// resolveDates converts a raw column into calendar dates aligned to row
// order. Strategy, each step only applied when the prior one resolved
// nothing:
//
//  1. Direct parsing against the layered layouts.
//  2. If the entire column failed, append "-01" to each trimmed value and
//     reparse. This turns year-month representations ("2025-03") into
//     first-of-month dates.
//
// Residual unresolved entries stay as zero times; the normalizer drops those
// rows. resolveDates never fabricates a synthetic date axis.
func resolveDates(cells []string) (dates []time.Time, resolved int) {
	dates = make([]time.Time, len(cells))
	for i, cell := range cells {
		if d, ok := parseDate(cell); ok {
			dates[i] = d
			resolved++
		}
	}
	if resolved > 0 {
		return dates, resolved
	}

	// Year-month fallback: "2025-03" -> "2025-03-01".
	for i, cell := range cells {
		if d, ok := parseDate(strings.TrimSpace(cell) + "-01"); ok {
			dates[i] = d
			resolved++
		}
	}
	return dates, resolved
}

// parseDate attempts every known layout and truncates the result to a
// timezone-naive calendar date.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
