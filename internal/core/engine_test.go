package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeBatch builds a batch whose record IDs are their row positions.
func makeBatch(header []string, rows ...[]string) Batch {
	b := make(Batch, len(rows))
	for i, row := range rows {
		b[i] = NewRecord(i, header, row)
	}
	return b
}

func value(t *testing.T, r Record, name string) Value {
	t.Helper()
	v, ok := r.Get(name)
	require.True(t, ok, "column %q not declared on %s", name, r)
	return v
}

func TestDuplicateCheck(t *testing.T) {
	t.Run("all members rejected, first survives", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"}, []string{"a"}, []string{"b"})

		res, err := DuplicateCheck(batch, []string{"email"})
		require.NoError(t, err)

		assert.Equal(t, []int{0, 2}, res.Survivors.IDs())
		assert.Equal(t, []int{0, 1}, res.Rejected.IDs())
		require.NotNil(t, res.Issue)
		assert.Equal(t, IssueMetadata{Kind: IssueDuplicate, Rows: []int{0, 1}}, *res.Issue)
	})

	t.Run("no attributes rejects nothing", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"}, []string{"a"})

		res, err := DuplicateCheck(batch, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, res.Survivors.IDs())
		assert.Empty(t, res.Rejected)
		assert.Nil(t, res.Issue)
	})

	t.Run("tuple over several attributes", func(t *testing.T) {
		batch := makeBatch([]string{"first", "last"},
			[]string{"ann", "lee"},
			[]string{"ann", "kim"},
			[]string{"bob", "lee"},
			[]string{"ann", "lee"},
		)

		res, err := DuplicateCheck(batch, []string{"first", "last"})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, res.Survivors.IDs())
		assert.Equal(t, []int{0, 3}, res.Rejected.IDs())
		assert.Equal(t, []int{0, 3}, res.Issue.Rows)
	})

	t.Run("nulls group together", func(t *testing.T) {
		batch := makeBatch([]string{"email", "id"},
			[]string{"", "1"},
			[]string{"", "2"},
		)

		res, err := DuplicateCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Survivors.IDs())
		assert.Equal(t, []int{0, 1}, res.Rejected.IDs())
	})

	t.Run("null and empty string differ", func(t *testing.T) {
		batch := Batch{
			NewRecord(0, []string{"email"}, []string{""}),
			NewRecord(1, []string{"email"}, []string{""}).With("email", Text("")),
		}

		res, err := DuplicateCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Empty(t, res.Rejected)
	})

	t.Run("separator in values does not collide", func(t *testing.T) {
		batch := makeBatch([]string{"a", "b"},
			[]string{"x|", "y"},
			[]string{"x", "|y"},
		)

		res, err := DuplicateCheck(batch, []string{"a", "b"})
		require.NoError(t, err)
		assert.Empty(t, res.Rejected)
	})

	t.Run("missing attribute passes through", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"}, []string{"a"})

		res, err := DuplicateCheck(batch, []string{"email", "phone"})

		var ruleErr *RuleApplicationError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, "phone", ruleErr.Attribute)
		assert.ErrorIs(t, err, ErrAttributeMissing)
		assert.Equal(t, []int{0, 1}, res.Survivors.IDs())
		assert.Empty(t, res.Rejected)
		assert.Nil(t, res.Issue)
	})
}

func TestNullCheck(t *testing.T) {
	t.Run("null value rejected", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"}, []string{""})

		res, err := NullCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Survivors.IDs())
		assert.Equal(t, []int{1}, res.Rejected.IDs())
		assert.Equal(t, IssueMetadata{Kind: IssueNull, Rows: []int{1}}, *res.Issue)
	})

	t.Run("record flagged by two attributes appears once", func(t *testing.T) {
		batch := makeBatch([]string{"email", "name"},
			[]string{"", ""},
			[]string{"a", "b"},
			[]string{"c", ""},
		)

		res, err := NullCheck(batch, []string{"email", "name"})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, res.Survivors.IDs())
		assert.Equal(t, []int{0, 2}, res.Rejected.IDs())
		assert.Equal(t, []int{0, 2}, res.Issue.Rows)
	})

	t.Run("present empty string is rejected", func(t *testing.T) {
		batch := Batch{NewRecord(0, []string{"email"}, []string{"x"}).With("email", Text(""))}

		res, err := NullCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Rejected.IDs())
	})

	t.Run("short row declares null", func(t *testing.T) {
		batch := makeBatch([]string{"id", "email"}, []string{"1"})

		res, err := NullCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Rejected.IDs())
	})

	t.Run("undeclared attribute skipped", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"}, []string{""})

		res, err := NullCheck(batch, []string{"phone", "email"})

		var ruleErr *RuleApplicationError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, StageNullChecked, ruleErr.Stage)
		assert.Equal(t, []int{1}, res.Rejected.IDs())
	})

	t.Run("clean batch has no issue", func(t *testing.T) {
		batch := makeBatch([]string{"email"}, []string{"a"})

		res, err := NullCheck(batch, []string{"email"})
		require.NoError(t, err)
		assert.Nil(t, res.Issue)
		assert.Empty(t, res.Rejected)
	})
}

func pipelineBatch() Batch {
	return makeBatch([]string{"email", "name", "phone"},
		[]string{"a", "x", "9876543210"},
		[]string{"a", "y", "044 12345678"},
		[]string{"b", "", "9123456789"},
		[]string{"c", "z", ""},
	)
}

func pipelineRules() RuleSet {
	return RuleSet{
		TestPhoneNumber: {"phone"},
		TestDuplicate:   {"email"},
		TestNull:        {"name"},
	}
}

func TestEngine_Partition(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)

	p, err := e.Partition(context.Background(), "f.csv", pipelineBatch(), pipelineRules())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3}, p.Clean.IDs())
	assert.Equal(t, []int{0, 1, 2}, p.Rejected.IDs())
	assert.Equal(t, []IssueMetadata{
		{Kind: IssueDuplicate, Rows: []int{0, 1}},
		// position within the batch the null stage saw: [0, 2, 3]
		{Kind: IssueNull, Rows: []int{1}},
	}, p.Issues)

	first := p.Clean[0]
	assert.False(t, first.Has("phone"))
	assert.Equal(t, Text("9876543210"), value(t, first, ContactNumber1))
	assert.Equal(t, Text(NoValue), value(t, first, ContactNumber2))

	last := p.Clean[1]
	assert.Equal(t, Text(NoValue), value(t, last, ContactNumber1))
}

func TestEngine_Partition_Idempotent(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	ctx := context.Background()

	p1, err := e.Partition(ctx, "f.csv", pipelineBatch(), pipelineRules())
	require.NoError(t, err)
	p2, err := e.Partition(ctx, "f.csv", pipelineBatch(), pipelineRules())
	require.NoError(t, err)

	assert.True(t, p1.Clean.Equal(p2.Clean))
	assert.True(t, p1.Rejected.Equal(p2.Rejected))
	assert.Equal(t, p1.Issues, p2.Issues)
}

func TestEngine_Partition_Completeness(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	batch := pipelineBatch()

	p, err := e.Partition(context.Background(), "f.csv", batch, pipelineRules())
	require.NoError(t, err)

	covered := make(map[int]int)
	for _, id := range p.Rejected.IDs() {
		covered[id]++
	}
	for _, id := range p.Clean.IDs() {
		if covered[id] == 0 {
			covered[id]++
		}
	}
	for _, id := range batch.IDs() {
		assert.Equal(t, 1, covered[id], "record %d", id)
	}

	rejected := make(map[int]bool)
	for _, id := range p.Rejected.IDs() {
		assert.False(t, rejected[id], "record %d rejected twice", id)
		rejected[id] = true
	}
}

func TestEngine_Partition_StageFailureContinues(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	batch := makeBatch([]string{"email"}, []string{"a"}, []string{"a"}, []string{""})

	p, err := e.Partition(context.Background(), "f.csv", batch, RuleSet{
		TestPhoneNumber: {"phone"},
		TestDuplicate:   {"missing"},
		TestNull:        {"email"},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, p.Clean.IDs())
	assert.Equal(t, []int{2}, p.Rejected.IDs())
	assert.Equal(t, []IssueMetadata{{Kind: IssueNull, Rows: []int{2}}}, p.Issues)
}

func TestEngine_Partition_NoRules(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	batch := pipelineBatch()

	p, err := e.Partition(context.Background(), "f.csv", batch, nil)
	require.NoError(t, err)
	assert.True(t, batch.Equal(p.Clean))
	assert.Empty(t, p.Rejected)
	assert.Empty(t, p.Issues)
}

func TestEngine_Partition_Cancelled(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Partition(ctx, "f.csv", pipelineBatch(), pipelineRules())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEngine_Process(t *testing.T) {
	schema, err := NewSchema(Field{Name: "name", Type: "string"}, Field{Name: "email", Type: "string"})
	require.NoError(t, err)

	rules := NewRuleCatalog(DefaultCategorySuffixLen)
	rules.Add("customer_master_20240101000000.csv", TestNull, "email")

	e := NewEngine(schema, rules, nil)
	batch := makeBatch([]string{"email", "name", "z"},
		[]string{"a", "x", "dropped"},
		[]string{"", "y", ""},
	)

	p, err := e.Process(context.Background(), "customer_master_20240726129048.csv", batch)
	require.NoError(t, err)

	assert.Equal(t, []IssueMetadata{
		{Kind: IssueSchema, Rows: []int{0}},
		{Kind: IssueNull, Rows: []int{1}},
	}, p.Issues)
	assert.Equal(t, []int{0}, p.Clean.IDs())
	assert.Equal(t, []string{"email", "name"}, p.Clean[0].Columns())
	assert.Equal(t, []int{1}, p.Rejected.IDs())
}

func TestEngine_Process_UnknownCategory(t *testing.T) {
	rules := NewRuleCatalog(DefaultCategorySuffixLen)
	rules.Add("customer_master_20240101000000.csv", TestNull, "email")
	e := NewEngine(Schema{}, rules, nil)

	batch := makeBatch([]string{"email"}, []string{""})
	p, err := e.Process(context.Background(), "orders_20240726129048000.csv", batch)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p.Clean.IDs())
	assert.Empty(t, p.Issues)
}

func TestEngine_Trim_EmptySchemaLeavesBatch(t *testing.T) {
	e := NewEngine(Schema{}, NewRuleCatalog(DefaultCategorySuffixLen), nil)
	batch := makeBatch([]string{"a", "z"}, []string{"1", "2"})

	out, issue := e.Trim(context.Background(), "f.csv", batch)
	assert.Nil(t, issue)
	assert.True(t, batch.Equal(out))
}
