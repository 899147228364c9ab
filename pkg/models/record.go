package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is an immutable flat record. Every field of its collection's schema
// is present; missing values are nil.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord builds a record over the given schema, copying values.
// Keys outside the schema are ignored.
func NewRecord(schema []string, values map[string]any) Record {
	r := Record{
		fields: append([]string(nil), schema...),
		values: make(map[string]any, len(schema)),
	}
	for _, f := range schema {
		r.values[f] = values[f]
	}
	return r
}

// Fields returns the field names in schema order.
func (r Record) Fields() []string {
	return append([]string(nil), r.fields...)
}

// Get returns the raw value of a field and whether the field is in the schema.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// IsZero reports whether the record was never initialised.
func (r Record) IsZero() bool { return r.values == nil }

// String returns the textual form of a field. Null and unknown fields are "".
func (r Record) String(field string) string {
	switch v := r.values[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns a list-valued field such as predicate_k_numbers.
func (r Record) Strings(field string) []string {
	switch v := r.values[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Map returns a copy of the record's values.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes fields in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
