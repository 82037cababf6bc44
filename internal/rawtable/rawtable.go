// Package rawtable materializes delimited text sources into an in-memory
// column-ordered table. The table carries no schema guarantees: cells stay as
// strings and columns keep their source order so the classifier can inspect
// them without mutation.
package rawtable

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is an arbitrary tabular input with named columns of unvalidated
// string cells. Header names are trimmed of surrounding whitespace on parse;
// when two headers collapse to the same trimmed name the first column wins.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// Parse reads a comma-separated source with an arbitrary header row. Rows
// with a different field count than the header are rejected; a missing header
// is an error.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, seen := t.index[name]; seen {
			// Duplicate-looking header differing only by whitespace: first wins.
			continue
		}
		t.index[name] = i
		t.columns = append(t.columns, name)
	}
	if len(t.columns) == 0 {
		return nil, fmt.Errorf("header row has no usable column names")
	}

	for rowNum := 2; ; rowNum++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum, err)
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

// Columns returns the column names in source discovery order.
func (t *Table) Columns() []string {
	return t.columns
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// HasColumn reports whether a column with the given trimmed name exists,
// compared case-insensitively.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.lookup(name)
	return ok
}

// Column returns all cells of the named column aligned to row order. Lookup
// is case-insensitive on the trimmed header name.
func (t *Table) Column(name string) ([]string, bool) {
	idx, ok := t.lookup(name)
	if !ok {
		return nil, false
	}
	cells := make([]string, len(t.rows))
	for i, row := range t.rows {
		if idx < len(row) {
			cells[i] = row[idx]
		}
	}
	return cells, true
}

// Sample returns up to limit cells from the named column, for type inference.
func (t *Table) Sample(name string, limit int) []string {
	cells, ok := t.Column(name)
	if !ok {
		return nil
	}
	if limit > 0 && len(cells) > limit {
		return cells[:limit]
	}
	return cells
}

func (t *Table) lookup(name string) (int, bool) {
	if idx, ok := t.index[name]; ok {
		return idx, true
	}
	for col, idx := range t.index {
		if strings.EqualFold(col, name) {
			return idx, true
		}
	}
	return 0, false
}
