package language

import (
	"bytes"
	"strings"
)

// RowOrGroup is what an expression is evaluated against: either a single row
// or a GROUP BY bucket
type RowOrGroup interface {
	// Representative returns the row non aggregate expressions read from
	Representative() *Row
	// Rows returns every row aggregate expressions iterate
	Rows() []*Row
}

// Row is an ordered mapping from column key (optionally table qualified) to
// value. The insertion order is the SELECT/schema order.
type Row struct {
	columns []string
	values  map[string]Object
}

// NewRow creates an empty row
func NewRow() *Row {
	return &Row{values: map[string]Object{}}
}

// NewRowFromPairs creates a row from alternating key, value arguments
func NewRowFromPairs(pairs ...interface{}) *Row {
	r := NewRow()

	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)

		obj, ok := pairs[i+1].(Object)
		if !ok {
			obj = NativeToObject(pairs[i+1])
		}

		r.Set(key, obj)
	}

	return r
}

// Set assigns the value of the column, keeping the first insertion position
func (r *Row) Set(key string, val Object) {
	if _, ok := r.values[key]; !ok {
		r.columns = append(r.columns, key)
	}

	r.values[key] = nativeNilToNullObject(val)
}

// Get returns the value of the column key
func (r *Row) Get(key string) (Object, bool) {
	obj, ok := r.values[key]

	return obj, ok
}

// Columns returns the column keys in order
func (r *Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)

	return out
}

// Values returns the values in column order
func (r *Row) Values() []Object {
	out := make([]Object, 0, len(r.columns))
	for _, c := range r.columns {
		out = append(out, r.values[c])
	}

	return out
}

// Len returns the number of columns
func (r *Row) Len() int {
	return len(r.columns)
}

// Copy returns a shallow copy of the row
func (r *Row) Copy() *Row {
	out := &Row{
		columns: make([]string, len(r.columns)),
		values:  make(map[string]Object, len(r.values)),
	}

	copy(out.columns, r.columns)

	for k, v := range r.values {
		out.values[k] = v
	}

	return out
}

// Merge returns a new row with the columns of other set on top of a copy of r,
// so same named keys are resolved in favor of other
func (r *Row) Merge(other *Row) *Row {
	out := r.Copy()

	for _, c := range other.columns {
		out.Set(c, other.values[c])
	}

	return out
}

// Representative returns the row itself
func (r *Row) Representative() *Row {
	return r
}

// Rows returns a group of one
func (r *Row) Rows() []*Row {
	return []*Row{r}
}

// ToNative returns the row as a go map
func (r *Row) ToNative() map[string]interface{} {
	out := make(map[string]interface{}, len(r.columns))
	for _, c := range r.columns {
		out[c] = r.values[c].ToNative()
	}

	return out
}

func (r *Row) String() string {
	var out bytes.Buffer

	pairs := []string{}
	for _, c := range r.columns {
		pairs = append(pairs, c+" => "+r.values[c].Inspect())
	}

	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ","))
	out.WriteString("}")

	return out.String()
}

// Group is a GROUP BY bucket: rows sharing a grouping key
type Group []*Row

// Representative returns the first member of the group, or an empty row
func (g Group) Representative() *Row {
	if len(g) == 0 {
		return NewRow()
	}

	return g[0]
}

// Rows returns the members of the group
func (g Group) Rows() []*Row {
	return g
}

// Dataset is an ordered sequence of rows, it is also the value of a subquery
type Dataset []*Row

// Type returns the object type
func (d Dataset) Type() ObjectType {
	return ObjectTypeDataset
}

// Inspect returns the readable value of the object
func (d Dataset) Inspect() string {
	rows := []string{}
	for _, r := range d {
		rows = append(rows, r.String())
	}

	return "[" + strings.Join(rows, ",") + "]"
}

// ToNative returns the go value
func (d Dataset) ToNative() interface{} {
	out := make([]map[string]interface{}, 0, len(d))
	for _, r := range d {
		out = append(out, r.ToNative())
	}

	return out
}
