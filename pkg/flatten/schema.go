package flatten

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a record shape with a declared schema.
type Kind string

const (
	KindKeyword Kind = "keyword"
	KindTag     Kind = "tag"
	KindSERP    Kind = "serp"
)

// ErrUnknownKind is returned for a kind without a registered schema.
var ErrUnknownKind = errors.New("unknown record kind")

// Schema declares how raw records of one kind become flat columns.
type Schema struct {
	Kind    Kind
	Version int

	// Rules produce the fixed columns in declaration order.
	Rules []Rule

	// Spreads produce variable-width columns, placed after the fixed ones.
	Spreads []Spread
}

// Rule is one schema declaration producing fixed columns.
// Implementations are Field, Expand, Join and Count.
type Rule interface {
	// names lists the produced column names in order.
	names() []string

	// apply reads obj and emits one value per name.
	apply(obj map[string]any, emit func(col string, raw any, typ Type) error) error
}

// Field is a column read from a dotted key path.
type Field struct {
	// Name of the column. Empty means the last path segment.
	Name string

	// Path is a dotted key path, e.g. "KeywordRanking.date".
	Path string

	Type Type
}

func (f Field) column() string {
	if f.Name != "" {
		return f.Name
	}
	if i := strings.LastIndexByte(f.Path, '.'); i >= 0 {
		return f.Path[i+1:]
	}
	return f.Path
}

func (f Field) names() []string { return []string{f.column()} }

func (f Field) apply(obj map[string]any, emit func(string, any, Type) error) error {
	raw, err := lookup(obj, f.Path)
	if err != nil {
		return pathError(f.column(), err)
	}
	return emit(f.column(), raw, f.Type)
}

// Expand flattens a nested object. Each inner column is named
// <Prefix>_<inner>, or just <inner> when Prefix is empty. Rules may
// themselves be Expands to reach deeper levels.
type Expand struct {
	Path   string
	Prefix string

	// Lower lower-cases the inner names.
	Lower bool

	Rules []Rule
}

func (e Expand) rename(inner string) string {
	if e.Lower {
		inner = strings.ToLower(inner)
	}
	if e.Prefix == "" {
		return inner
	}
	return e.Prefix + "_" + inner
}

func (e Expand) names() []string {
	var out []string
	for _, r := range e.Rules {
		for _, n := range r.names() {
			out = append(out, e.rename(n))
		}
	}
	return out
}

func (e Expand) apply(obj map[string]any, emit func(string, any, Type) error) error {
	raw, err := lookup(obj, e.Path)
	if err != nil {
		return pathError(e.Path, err)
	}

	var nested map[string]any
	switch x := raw.(type) {
	case nil:
	case map[string]any:
		nested = x
	case string:
		// the API sends "" for an absent block
		if x != "" {
			return &pathErr{col: e.Path, raw: raw, want: "object"}
		}
	default:
		return &pathErr{col: e.Path, raw: raw, want: "object"}
	}

	inner := func(col string, raw any, typ Type) error {
		return emit(e.rename(col), raw, typ)
	}
	for _, r := range e.Rules {
		if err := r.apply(nested, inner); err != nil {
			return err
		}
	}
	return nil
}

// Join stores a list found at Path as one Sep-joined string.
type Join struct {
	Name string
	Path string
	Sep  string
}

func (j Join) names() []string { return []string{j.Name} }

func (j Join) apply(obj map[string]any, emit func(string, any, Type) error) error {
	items, err := listAt(obj, j.Path, "")
	if err != nil {
		return pathError(j.Name, err)
	}
	if items == nil {
		return emit(j.Name, nil, TypeString)
	}
	return emit(j.Name, strings.Join(items, j.Sep), TypeString)
}

// Count stores the length of a list found at Path. Missing lists count 0.
type Count struct {
	Name string
	Path string
}

func (c Count) names() []string { return []string{c.Name} }

func (c Count) apply(obj map[string]any, emit func(string, any, Type) error) error {
	items, err := listAt(obj, c.Path, "")
	if err != nil {
		return pathError(c.Name, err)
	}
	return emit(c.Name, int64(len(items)), TypeInt)
}

// Spread turns a delimited string or a list into Prefix0, Prefix1, ...
// columns. The width is the largest item count in a batch.
type Spread struct {
	Prefix string
	Path   string

	// Sep splits string values. Empty keeps a string as a single item.
	Sep string
}

func (s Spread) column(i int) string {
	return fmt.Sprintf("%s%d", s.Prefix, i)
}

func (s Spread) items(obj map[string]any) ([]string, error) {
	items, err := listAt(obj, s.Path, s.Sep)
	if err != nil {
		return nil, pathError(s.Prefix, err)
	}
	return items, nil
}

// Columns returns the fixed column names in declaration order.
func (s *Schema) Columns() []string {
	var out []string
	for _, r := range s.Rules {
		out = append(out, r.names()...)
	}
	return out
}

// lookup follows a dotted path. Missing keys, null and "" along the way
// yield nil. A scalar where an object is needed is an error.
func lookup(obj map[string]any, path string) (any, error) {
	if path == "" {
		return obj, nil
	}
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		switch x := cur.(type) {
		case nil:
			return nil, nil
		case map[string]any:
			if x == nil {
				return nil, nil
			}
			cur = x[key]
		case string:
			if x == "" {
				return nil, nil
			}
			return nil, &pathErr{raw: cur, want: "object"}
		default:
			return nil, &pathErr{raw: cur, want: "object"}
		}
	}
	return cur, nil
}

// listAt returns the string items at path. A string is split on sep (or
// kept whole when sep is empty); a list has each element rendered as a
// string; null, missing and "" give nil.
func listAt(obj map[string]any, path, sep string) ([]string, error) {
	raw, err := lookup(obj, path)
	if err != nil {
		return nil, err
	}

	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		if sep == "" {
			return []string{x}, nil
		}
		parts := strings.Split(x, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			v, err := Coerce(item, TypeString)
			if err != nil {
				return nil, &pathErr{raw: item, want: "string item"}
			}
			out = append(out, v.String())
		}
		return out, nil
	default:
		v, err := Coerce(raw, TypeString)
		if err != nil {
			return nil, &pathErr{raw: raw, want: "list"}
		}
		return []string{v.String()}, nil
	}
}

// pathErr is a structural mismatch found while walking a record.
type pathErr struct {
	col  string
	raw  any
	want string
}

func (e *pathErr) Error() string {
	return fmt.Sprintf("cannot use %T %v as %s", e.raw, e.raw, e.want)
}

func pathError(col string, err error) error {
	var pe *pathErr
	if errors.As(err, &pe) && pe.col == "" {
		pe.col = col
	}
	return err
}
