package core

import (
	"fmt"
	"slices"
	"strings"
)

// Value is a single cell. A Value with Valid=false is null, which is
// distinct from a present empty string.
type Value struct {
	String string
	Valid  bool
}

// Text returns a non-null Value.
func Text(s string) Value {
	return Value{String: s, Valid: true}
}

// Null returns a null Value.
func Null() Value {
	return Value{}
}

// IsEmpty reports whether the value is null or an empty string.
func (v Value) IsEmpty() bool {
	return !v.Valid || v.String == ""
}

// Record is one row of a file: an ordered set of declared columns and their values.
//
// A column can be declared with a null value ("declared but absent") or not
// declared at all; Get distinguishes the two. Records are treated as immutable:
// With and Without return modified copies.
type Record struct {
	// ID is the record's 0-based position in the file as read. It is the
	// record's identity across pipeline stages and never changes.
	ID int

	columns []string
	values  map[string]Value
}

// NewRecord builds a record from a header and a row of cells.
// Cells missing from a short row are declared null; empty cells are null too,
// matching how the upstream delimited files encode missing data.
func NewRecord(id int, header []string, cells []string) Record {
	r := Record{
		ID:      id,
		columns: make([]string, 0, len(header)),
		values:  make(map[string]Value, len(header)),
	}
	for i, name := range header {
		if _, dup := r.values[name]; dup {
			continue
		}
		v := Null()
		if i < len(cells) && cells[i] != "" {
			v = Text(cells[i])
		}
		r.columns = append(r.columns, name)
		r.values[name] = v
	}
	return r
}

// Get returns the value at name and whether the column is declared on the record.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the column is declared on the record.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Columns returns the declared column names in order.
func (r Record) Columns() []string {
	return slices.Clone(r.columns)
}

// Len returns the number of declared columns.
func (r Record) Len() int {
	return len(r.columns)
}

// With returns a copy of the record with name set to v.
// A new column is appended after the existing ones.
func (r Record) With(name string, v Value) Record {
	out := r.clone()
	if _, ok := out.values[name]; !ok {
		out.columns = append(out.columns, name)
	}
	out.values[name] = v
	return out
}

// Without returns a copy of the record with name removed.
func (r Record) Without(name string) Record {
	if !r.Has(name) {
		return r
	}
	out := r.clone()
	delete(out.values, name)
	out.columns = slices.DeleteFunc(out.columns, func(c string) bool { return c == name })
	return out
}

// Cells renders the record's values in the given column order.
// Null and undeclared columns render as empty strings.
func (r Record) Cells(columns []string) []string {
	cells := make([]string, len(columns))
	for i, c := range columns {
		if v, ok := r.values[c]; ok && v.Valid {
			cells[i] = v.String
		}
	}
	return cells
}

// Equal reports whether two records declare the same columns, in the same
// order, with the same values and the same ID.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || !slices.Equal(r.columns, o.columns) {
		return false
	}
	for _, c := range r.columns {
		if r.values[c] != o.values[c] {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	parts := make([]string, len(r.columns))
	for i, c := range r.columns {
		v := r.values[c]
		if v.Valid {
			parts[i] = fmt.Sprintf("%s=%q", c, v.String)
		} else {
			parts[i] = c + "=<null>"
		}
	}
	return fmt.Sprintf("#%d{%s}", r.ID, strings.Join(parts, " "))
}

func (r Record) clone() Record {
	out := Record{
		ID:      r.ID,
		columns: slices.Clone(r.columns),
		values:  make(map[string]Value, len(r.values)+2),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Batch is the full ordered sequence of records read from one file.
type Batch []Record

// Columns returns the union of declared columns across the batch,
// in first-seen order.
func (b Batch) Columns() []string {
	var cols []string
	seen := make(map[string]bool)
	for _, r := range b {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// IDs returns the record identities in batch order.
func (b Batch) IDs() []int {
	ids := make([]int, len(b))
	for i, r := range b {
		ids[i] = r.ID
	}
	return ids
}

// Equal reports whether two batches hold equal records in the same order.
func (b Batch) Equal(o Batch) bool {
	return slices.EqualFunc(b, o, Record.Equal)
}

// IssueKind names the rule that flagged a set of rows.
type IssueKind string

const (
	IssueNull      IssueKind = "null"
	IssueDuplicate IssueKind = "duplicate"
	IssueSchema    IssueKind = "schema"
)

// IssueMetadata records one rule invocation that found violations.
// Rows are 0-based positions in the batch as that stage saw it.
type IssueMetadata struct {
	Kind IssueKind `json:"kind"`
	Rows []int     `json:"rows"`
}

// RowList renders Rows the way the metadata sink stores them, e.g. "[0, 1]".
func (m IssueMetadata) RowList() string {
	parts := make([]string, len(m.Rows))
	for i, r := range m.Rows {
		parts[i] = fmt.Sprint(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Partition is the terminal split of one file's batch.
type Partition struct {
	Clean    Batch
	Rejected Batch
	Issues   []IssueMetadata
}

// Stage is a step of the per-file state machine.
type Stage string

const (
	StageLoaded           Stage = "loaded"
	StagePhoneNormalized  Stage = "phone_normalized"
	StageDuplicateChecked Stage = "duplicate_checked"
	StageNullChecked      Stage = "null_checked"
	StagePartitioned      Stage = "partitioned"
)
