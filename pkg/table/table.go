// Package table assembles flattened records into one rectangular table.
package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/stat-client/pkg/flatten"
)

// ErrUnknownColumn is returned when a requested column is not in the table.
var ErrUnknownColumn = errors.New("unknown column")

// Pair is one metadata cell attached to every row of a source.
type Pair struct {
	Column string
	Value  flatten.Value
}

// Source is a batch of records plus the metadata shared by all of them,
// e.g. the Domain they were pulled for.
type Source struct {
	Records  []flatten.Record
	Metadata []Pair
}

// Table is a rectangular result. Missing cells are null.
type Table struct {
	Columns []string
	Rows    [][]flatten.Value

	index map[string]int
}

// New creates an empty table with the given columns.
func New(columns []string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

func (t *Table) addColumn(col string) int {
	if i, ok := t.index[col]; ok {
		return i
	}
	t.Columns = append(t.Columns, col)
	t.index[col] = len(t.Columns) - 1
	return len(t.Columns) - 1
}

// Assemble merges sources into one table. The schema is the union of all
// columns in first-seen order: each record's columns, then its source's
// metadata columns. Rows keep source order and are never deduplicated.
func Assemble(sources ...Source) *Table {
	t := New(nil)

	type cell struct {
		col int
		val flatten.Value
	}
	var rows [][]cell

	for _, src := range sources {
		for _, rec := range src.Records {
			row := make([]cell, 0, len(rec.Columns)+len(src.Metadata))
			for i, c := range rec.Columns {
				row = append(row, cell{t.addColumn(c), rec.Values[i]})
			}
			for _, m := range src.Metadata {
				row = append(row, cell{t.addColumn(m.Column), m.Value})
			}
			rows = append(rows, row)
		}
	}

	t.Rows = make([][]flatten.Value, len(rows))
	for i, row := range rows {
		values := make([]flatten.Value, len(t.Columns))
		for _, c := range row {
			values[c.col] = c.val
		}
		t.Rows[i] = values
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether col is part of the schema.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Get returns the cell at row and col, null when col is unknown.
func (t *Table) Get(row int, col string) flatten.Value {
	i, ok := t.index[col]
	if !ok {
		return flatten.Null
	}
	return t.Rows[row][i]
}

// Project returns a table with exactly cols, in that order.
func (t *Table) Project(cols []string) (*Table, error) {
	idx := make([]int, len(cols))
	var missing []string
	for i, c := range cols {
		j, ok := t.index[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, strings.Join(missing, ", "))
	}

	out := New(cols)
	out.Rows = make([][]flatten.Value, len(t.Rows))
	for r, row := range t.Rows {
		values := make([]flatten.Value, len(cols))
		for i, j := range idx {
			values[i] = row[j]
		}
		out.Rows[r] = values
	}
	return out, nil
}

// Distinct returns a table without repeated rows, keeping first occurrences.
func (t *Table) Distinct() *Table {
	out := New(t.Columns)
	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		k := rowKey(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Filter keeps the rows whose col value satisfies keep.
func (t *Table) Filter(col string, keep func(flatten.Value) bool) (*Table, error) {
	i, ok := t.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	out := New(t.Columns)
	for _, row := range t.Rows {
		if keep(row[i]) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// In returns a Filter predicate matching string values in set.
func In(set ...string) func(flatten.Value) bool {
	m := make(map[string]struct{}, len(set))
	for _, s := range set {
		m[s] = struct{}{}
	}
	return func(v flatten.Value) bool {
		if v.IsNull() {
			return false
		}
		_, ok := m[v.String()]
		return ok
	}
}

// Append adds the rows of other, widening the schema as Assemble does.
func (t *Table) Append(other *Table) {
	idx := make([]int, len(other.Columns))
	for i, c := range other.Columns {
		idx[i] = t.addColumn(c)
	}
	for r := range t.Rows {
		for len(t.Rows[r]) < len(t.Columns) {
			t.Rows[r] = append(t.Rows[r], flatten.Null)
		}
	}
	for _, row := range other.Rows {
		values := make([]flatten.Value, len(t.Columns))
		for i, j := range idx {
			values[j] = row[i]
		}
		t.Rows = append(t.Rows, values)
	}
}

func rowKey(row []flatten.Value) string {
	var sb strings.Builder
	for _, v := range row {
		sb.WriteString(v.Key())
		sb.WriteByte(0)
	}
	return sb.String()
}
