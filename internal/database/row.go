package database

import (
	"bytes"
	"encoding/json"
)

// Row is one result record: an ordered mapping from column name to the
// Go-native representation of the value.
//
// Column order is the order the driver reported. When a result carries the
// same column name twice, Get and Map resolve to the last occurrence.
type Row struct {
	columns []string
	values  []any
}

// NewRow pairs columns with values. The slices are retained, not copied.
// values shorter than columns are padded with nil.
func NewRow(columns []string, values []any) Row {
	if len(values) < len(columns) {
		padded := make([]any, len(columns))
		copy(padded, values)
		values = padded
	}
	return Row{columns: columns, values: values[:len(columns)]}
}

// Columns returns the column names in result order.
func (r Row) Columns() []string { return r.columns }

// Values returns the values in result order.
func (r Row) Values() []any { return r.values }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.columns) }

// At returns the value of the i-th column.
func (r Row) At(i int) any { return r.values[i] }

// First returns the value of the first column. ok is false for a zero-column row.
func (r Row) First() (any, bool) {
	if len(r.values) == 0 {
		return nil, false
	}
	return r.values[0], true
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// With returns a copy of r where column holds v. A missing column is appended.
func (r Row) With(column string, v any) Row {
	cols := append([]string(nil), r.columns...)
	vals := append([]any(nil), r.values...)
	for i := len(cols) - 1; i >= 0; i-- {
		if cols[i] == column {
			vals[i] = v
			return Row{columns: cols, values: vals}
		}
	}
	return Row{columns: append(cols, column), values: append(vals, v)}
}

// Map returns the row as a plain map, losing column order.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, col := range r.columns {
		m[col] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
