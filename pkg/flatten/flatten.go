package flatten

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsFlattenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_records_flattened_total",
		Help: "Total records flattened by kind",
	}, []string{"kind"})

	coercionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_coercion_errors_total",
		Help: "Total type coercion failures by kind",
	}, []string{"kind"})
)

// ErrTypeCoercion marks a value that does not fit its declared column type.
var ErrTypeCoercion = errors.New("type coercion failed")

// CoercionError reports the record and column of a rejected value.
type CoercionError struct {
	Kind   Kind
	Index  int
	Column string
	Value  any
	Type   string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("flatten %s record %d: column %s: cannot use %T %v as %s",
		e.Kind, e.Index, e.Column, e.Value, e.Value, e.Type)
}

// Unwrap lets errors.Is match ErrTypeCoercion.
func (e *CoercionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTypeCoercion}
	}
	return []error{ErrTypeCoercion, e.Err}
}

// Lookup returns the registered schema for kind.
func Lookup(kind Kind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return s, nil
}

// Flatten converts one raw record. Spread columns are as wide as this
// record needs.
func Flatten(raw map[string]any, kind Kind) (Record, error) {
	recs, err := FlattenBatch([]map[string]any{raw}, kind)
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// FlattenBatch converts raws with one shared column layout: the schema's
// fixed columns followed by spread columns sized to the batch maximum and
// null-filled for shorter records.
func FlattenBatch(raws []map[string]any, kind Kind) ([]Record, error) {
	schema, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return flattenWith(schema, raws)
}

func flattenWith(schema *Schema, raws []map[string]any) ([]Record, error) {
	kind := schema.Kind
	fixedCols := schema.Columns()
	widths := make([]int, len(schema.Spreads))
	rows := make([]flatRow, len(raws))

	for idx, raw := range raws {
		r, err := schema.flattenOne(raw, idx, len(fixedCols))
		if err != nil {
			coercionErrorsTotal.WithLabelValues(string(kind)).Inc()
			return nil, err
		}
		for i, items := range r.spreads {
			widths[i] = max(widths[i], len(items))
		}
		rows[idx] = r
	}

	columns := append([]string(nil), fixedCols...)
	for i, sp := range schema.Spreads {
		for j := 0; j < widths[i]; j++ {
			columns = append(columns, sp.column(j))
		}
	}

	out := make([]Record, len(rows))
	for idx, r := range rows {
		values := make([]Value, 0, len(columns))
		values = append(values, r.fixed...)
		for i, items := range r.spreads {
			for j := 0; j < widths[i]; j++ {
				if j < len(items) {
					values = append(values, String(items[j]))
				} else {
					values = append(values, Null)
				}
			}
		}
		out[idx] = Record{Columns: columns, Values: values}
	}

	recordsFlattenedTotal.WithLabelValues(string(kind)).Add(float64(len(raws)))
	return out, nil
}

type flatRow struct {
	fixed   []Value
	spreads [][]string
}

func (s *Schema) flattenOne(raw map[string]any, idx, ncols int) (flatRow, error) {
	row := flatRow{fixed: make([]Value, 0, ncols)}

	emit := func(col string, v any, typ Type) error {
		val, err := Coerce(v, typ)
		if err != nil {
			return &CoercionError{Kind: s.Kind, Index: idx, Column: col, Value: v, Type: typ.String(), Err: err}
		}
		row.fixed = append(row.fixed, val)
		return nil
	}

	for _, rule := range s.Rules {
		if err := rule.apply(raw, emit); err != nil {
			return flatRow{}, s.wrap(idx, err)
		}
	}

	for _, sp := range s.Spreads {
		items, err := sp.items(raw)
		if err != nil {
			return flatRow{}, s.wrap(idx, err)
		}
		row.spreads = append(row.spreads, items)
	}

	return row, nil
}

// wrap turns structural path errors into CoercionErrors.
func (s *Schema) wrap(idx int, err error) error {
	var pe *pathErr
	if errors.As(err, &pe) {
		return &CoercionError{Kind: s.Kind, Index: idx, Column: pe.col, Value: pe.raw, Type: pe.want, Err: err}
	}
	return err
}
