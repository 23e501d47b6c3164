package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchema(t *testing.T) {
	src := "Field Name,DataType,Description\n" +
		"email , string,primary contact\n" +
		"name,string,\n" +
		"age,int,years\n"

	s, err := LoadSchema(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"age", "email", "name"}, s.Names())
	f, ok := s.Lookup("email")
	require.True(t, ok)
	assert.Equal(t, Field{Name: "email", Type: "string"}, f)
}

func TestLoadSchema_BOM(t *testing.T) {
	s, err := LoadSchema(strings.NewReader("\ufeffField Name,DataType\nid,int\n"))
	require.NoError(t, err)
	assert.True(t, s.Has("id"))
}

func TestLoadSchema_Malformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"missing column", "Name,DataType\nid,int\n"},
		{"empty field name", "Field Name,DataType\n,int\n"},
		{"bad quoting", "Field Name,DataType\n\"id,int\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSchema(strings.NewReader(tt.src))

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, "schema", loadErr.Source)
			assert.True(t, s.IsEmpty())
		})
	}
}

func TestLoadSchema_RedeclaredFieldKeepsLast(t *testing.T) {
	src := "Field Name,DataType\nid,int\nname,string\nid,string\nid,date\n"

	s, err := LoadSchema(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, s.Names())
	f, ok := s.Lookup("id")
	require.True(t, ok)
	assert.Equal(t, "date", f.Type)
	assert.Equal(t, []string{"id"}, s.Redeclared())
}

func TestNewSchema_DuplicateField(t *testing.T) {
	_, err := NewSchema(Field{Name: "id"}, Field{Name: "id"})
	assert.Error(t, err)
}

func TestSchema_Trim(t *testing.T) {
	s, err := NewSchema(Field{Name: "b"}, Field{Name: "a"})
	require.NoError(t, err)

	rec := NewRecord(4, []string{"a", "b", "z"}, []string{"1", "2", "3"})
	out, extra := s.Trim(rec)

	assert.Equal(t, 4, out.ID)
	assert.Equal(t, []string{"a", "b"}, out.Columns())
	assert.Equal(t, []string{"z"}, extra)
	assert.Equal(t, Text("1"), value(t, out, "a"))
}

func TestSchema_Trim_MissingFieldStaysUndeclared(t *testing.T) {
	s, err := NewSchema(Field{Name: "a"}, Field{Name: "b"})
	require.NoError(t, err)

	out, extra := s.Trim(NewRecord(0, []string{"b"}, []string{"x"}))
	assert.Empty(t, extra)
	assert.Equal(t, []string{"b"}, out.Columns())
	assert.False(t, out.Has("a"))
}

func TestSchema_Trim_Idempotent(t *testing.T) {
	s, err := NewSchema(Field{Name: "a"}, Field{Name: "b"})
	require.NoError(t, err)

	once, _ := s.Trim(NewRecord(0, []string{"z", "b", "a"}, []string{"1", "2", "3"}))
	twice, extra := s.Trim(once)
	assert.Empty(t, extra)
	assert.True(t, once.Equal(twice))
}
