package core

// schema.go loads the field catalog and trims records to it.
//
// The schema source is a delimited file with a header row naming at least the
// "Field Name" and "DataType" columns. Field names and types are trimmed.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Schema source column headers.
const (
	SchemaFieldNameColumn = "Field Name"
	SchemaDataTypeColumn  = "DataType"
)

// Field is one declared column and its data type tag ("string", "int", "date", ...).
type Field struct {
	Name string
	Type string
}

// Schema is the ordered set of declared fields, keyed by name.
// The zero value is an empty schema.
type Schema struct {
	fields     []Field
	index      map[string]int
	redeclared []string
}

// NewSchema builds a schema from fields. Field names must be unique.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, errors.New("empty field name")
		}
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate field %q", f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// LoadSchema parses field-name/data-type rows. On a malformed source it
// returns an empty Schema and a *LoadError; the caller logs and continues.
//
// A field declared more than once keeps its last data type and is listed by
// [Schema.Redeclared].
func LoadSchema(r io.Reader) (Schema, error) {
	rows, err := readTable(r, SchemaFieldNameColumn, SchemaDataTypeColumn)
	if err != nil {
		return Schema{}, &LoadError{Source: "schema", Err: err}
	}

	fields := make([]Field, 0, len(rows))
	pos := make(map[string]int, len(rows))
	var redeclared []string
	for _, row := range rows {
		f := Field{
			Name: strings.TrimSpace(row[0]),
			Type: strings.TrimSpace(row[1]),
		}
		if i, dup := pos[f.Name]; dup {
			fields[i] = f
			if !slices.Contains(redeclared, f.Name) {
				redeclared = append(redeclared, f.Name)
			}
			continue
		}
		pos[f.Name] = len(fields)
		fields = append(fields, f)
	}

	s, err := NewSchema(fields...)
	if err != nil {
		return Schema{}, &LoadError{Source: "schema", Err: err}
	}
	s.redeclared = redeclared
	return s, nil
}

// Len returns the number of declared fields.
func (s Schema) Len() int {
	return len(s.fields)
}

// IsEmpty reports whether no fields are declared.
func (s Schema) IsEmpty() bool {
	return len(s.fields) == 0
}

// Redeclared returns the field names that appeared more than once in the
// loaded source.
func (s Schema) Redeclared() []string {
	return slices.Clone(s.redeclared)
}

// Has reports whether name is a declared field.
func (s Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Lookup returns the declared field for name.
func (s Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the declared fields in load order.
func (s Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Names returns the declared field names in canonical (sorted) order.
func (s Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	slices.Sort(names)
	return names
}

// Trim restricts rec to declared fields in canonical order and returns the
// names of any extra columns it dropped. Declared fields the record lacks are
// left undeclared, not defaulted. Trim never fails.
func (s Schema) Trim(rec Record) (Record, []string) {
	var extra []string
	for _, c := range rec.columns {
		if !s.Has(c) {
			extra = append(extra, c)
		}
	}

	out := Record{
		ID:      rec.ID,
		columns: make([]string, 0, len(rec.columns)-len(extra)),
		values:  make(map[string]Value, len(rec.columns)-len(extra)),
	}
	for _, name := range s.Names() {
		if v, ok := rec.values[name]; ok {
			out.columns = append(out.columns, name)
			out.values[name] = v
		}
	}
	return out, extra
}

// readTable reads a headered delimited table and projects each data row onto
// the required columns, in the order given. Rows shorter than the header are
// padded with empty cells.
func readTable(r io.Reader, required ...string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty source")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	pos := make([]int, len(required))
	for i, name := range required {
		pos[i] = slices.IndexFunc(header, func(h string) bool {
			return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name
		})
		if pos[i] < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows [][]string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]string, len(required))
		for i, p := range pos {
			if p < len(rec) {
				row[i] = rec[p]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
