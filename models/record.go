// Package models defines data structures for the scraper.
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind tags the payload carried by a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindGroup
)

// Value is a single field value: a string, a number or a nested group of fields.
type Value struct {
	kind  Kind
	str   string
	num   float64
	group Record
}

// String builds a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number builds a numeric value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Group builds a nested value.
func Group(r Record) Value {
	return Value{kind: KindGroup, group: r}
}

// Kind reports which payload the value carries.
func (v Value) Kind() Kind {
	return v.kind
}

// IsEmpty reports whether the value is the missing sentinel (an empty string)
// or a group without fields.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return v.str == ""
	case KindGroup:
		return v.group.Len() == 0
	default:
		return false
	}
}

// Number returns the numeric payload.
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Group returns the nested payload.
func (v Value) Group() (Record, bool) {
	if v.kind != KindGroup {
		return Record{}, false
	}
	return v.group, true
}

// String renders the value the way it is written to tabular outputs.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindGroup:
		raw, err := json.Marshal(v.group)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return v.str
	}
}

// MarshalJSON encodes numbers as JSON numbers and groups as objects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindGroup:
		return json.Marshal(v.group)
	default:
		return json.Marshal(v.str)
	}
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is one extracted listing. Field order is the column order of every
// tabular output. Records are immutable once built.
type Record struct {
	fields []Field
}

// NewRecord builds a record from fields; a repeated name keeps its first
// position and takes the last value.
func NewRecord(fields ...Field) Record {
	b := NewBuilder(len(fields))
	for _, f := range fields {
		b.Set(f.Name, f.Value)
	}
	return b.Build()
}

// Len returns the number of top-level fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Get looks up a top-level field.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Text returns the string form of a field, or "" when it is absent.
func (r Record) Text(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	return v.String()
}

// Fields returns a copy of the top-level fields in order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Names returns the top-level field names in order.
func (r Record) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Flatten expands nested groups into dotted leaf fields ("price.total").
func (r Record) Flatten() []Field {
	out := make([]Field, 0, len(r.fields))
	for _, f := range r.fields {
		if g, ok := f.Value.Group(); ok {
			for _, leaf := range g.Flatten() {
				out = append(out, Field{Name: f.Name + "." + leaf.Name, Value: leaf.Value})
			}
			continue
		}
		out = append(out, f)
	}
	return out
}

// Columns returns the flattened column names.
func (r Record) Columns() []string {
	flat := r.Flatten()
	out := make([]string, len(flat))
	for i, f := range flat {
		out[i] = f.Name
	}
	return out
}

// Row renders the record against a column list; missing columns are "".
func (r Record) Row(columns []string) []string {
	values := make(map[string]string, len(columns))
	for _, f := range r.Flatten() {
		values[f.Name] = f.Value.String()
	}
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = values[col]
	}
	return row
}

// MarshalJSON encodes the record as an object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Builder assembles a Record. It is not safe for concurrent use.
type Builder struct {
	fields []Field
	index  map[string]int
}

// NewBuilder returns an empty builder.
func NewBuilder(capacity int) *Builder {
	return &Builder{
		fields: make([]Field, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

// Set adds a field, or replaces the value of an existing one in place.
func (b *Builder) Set(name string, v Value) *Builder {
	if i, ok := b.index[name]; ok {
		b.fields[i].Value = v
		return b
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, Field{Name: name, Value: v})
	return b
}

// SetString is shorthand for Set(name, String(s)).
func (b *Builder) SetString(name, s string) *Builder {
	return b.Set(name, String(s))
}

// Merge copies every field of r into the builder.
func (b *Builder) Merge(r Record) *Builder {
	for _, f := range r.fields {
		b.Set(f.Name, f.Value)
	}
	return b
}

// Build returns the finished record. The builder may keep being used.
func (b *Builder) Build() Record {
	fields := make([]Field, len(b.fields))
	copy(fields, b.fields)
	return Record{fields: fields}
}
