package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one column/value pair of a Record.
type Field struct {
	Column string
	Value  any
}

// Record is an ordered column → value mapping. It is both the shape of a
// result row and of a client-submitted payload; JSON encoding keeps the
// column order in both directions.
type Record []Field

// Get returns the value stored under column.
func (r Record) Get(column string) (any, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Lookup is Get with case-insensitive matching. It returns the column name
// as stored in the record.
func (r Record) Lookup(column string) (string, any, bool) {
	for _, f := range r {
		if strings.EqualFold(f.Column, column) {
			return f.Column, f.Value, true
		}
	}
	return "", nil, false
}

// Set replaces the value for column, or appends it when absent.
func (r *Record) Set(column string, value any) {
	for i := range *r {
		if (*r)[i].Column == column {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Field{Column: column, Value: value})
}

// Columns returns the column names in order.
func (r Record) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

// Values returns the values in column order.
func (r Record) Values() []any {
	vals := make([]any, len(r))
	for i, f := range r {
		vals[i] = f.Value
	}
	return vals
}

// MarshalJSON encodes the record as a JSON object in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Column, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the submitted key order.
//
// Numbers become int64 when integral and float64 otherwise. Nested objects
// and arrays are kept as their JSON text so they can be stored in JSON
// columns. A repeated key keeps its first position and its last value.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}

	rec := make(Record, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value of %q: %w", key, err)
		}
		val, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("value of %q: %w", key, err)
		}
		rec.Set(key, val)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = rec
	return nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, err
		}
		return compact.String(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return v, nil
}
