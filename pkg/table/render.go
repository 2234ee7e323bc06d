package table

import (
	"encoding/csv"
	"fmt"
	"io"

	pretty "github.com/jedib0t/go-pretty/v6/table"
)

// Strings returns the rows rendered as text, nulls as "".
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = v.String()
		}
		out[i] = rec
	}
	return out
}

// WriteCSV writes a header line and every row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Strings()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Preview renders up to limit rows as a text table. limit <= 0 renders all.
func (t *Table) Preview(w io.Writer, limit int) {
	tw := pretty.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(pretty.StyleLight)

	header := make(pretty.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	tw.AppendHeader(header)

	rows := t.Strings()
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, r := range rows {
		row := make(pretty.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	if len(rows) < t.Len() {
		tw.AppendFooter(pretty.Row{fmt.Sprintf("%d of %d rows", len(rows), t.Len())})
	}
	tw.Render()
}
