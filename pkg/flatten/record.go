package flatten

// Record is one flattened row: ordered columns with a value each.
type Record struct {
	Columns []string
	Values  []Value
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.Columns) }

// Get returns the value of col and whether the column exists.
func (r Record) Get(col string) (Value, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return Null, false
}

// Map returns the record as column -> value.
func (r Record) Map() map[string]Value {
	m := make(map[string]Value, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}
