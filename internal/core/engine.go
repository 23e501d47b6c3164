package core

// engine.go runs the rule stages over one file's batch.
//
// A file moves through a fixed sequence of stages:
//
//	loaded -> phone_normalized -> duplicate_checked -> null_checked -> partitioned
//
// Each stage is a pure function from a batch to a StageResult. The Engine
// threads survivors from one stage to the next and accumulates rejected
// records and issue metadata. A stage that cannot apply a configured
// attribute logs the failure and is treated as having flagged nothing.

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// StageResult is the outcome of one rule stage.
type StageResult struct {
	Survivors Batch
	Rejected  Batch
	// Issue is nil when the stage rejected nothing.
	Issue *IssueMetadata
}

// passThrough is the result of a stage that flagged nothing.
func passThrough(b Batch) StageResult {
	return StageResult{Survivors: b}
}

// DuplicateCheck groups records by their value tuple over attributes.
// Every member of a group larger than one is rejected; survivors keep the
// first occurrence of every group, in batch order. With no attributes nothing
// is rejected. An attribute no record declares fails the whole stage with a
// *RuleApplicationError and a pass-through result.
func DuplicateCheck(batch Batch, attributes []string) (StageResult, error) {
	if len(attributes) == 0 || len(batch) == 0 {
		return passThrough(batch), nil
	}
	for _, attr := range attributes {
		if !batchDeclares(batch, attr) {
			return passThrough(batch), &RuleApplicationError{
				Stage:     StageDuplicateChecked,
				Attribute: attr,
				Err:       ErrAttributeMissing,
			}
		}
	}

	keys := make([]string, len(batch))
	counts := make(map[string]int, len(batch))
	for i, rec := range batch {
		keys[i] = tupleKey(rec, attributes)
		counts[keys[i]]++
	}

	res := StageResult{Survivors: make(Batch, 0, len(counts))}
	var rows []int
	kept := make(map[string]bool, len(counts))
	for i, rec := range batch {
		k := keys[i]
		if counts[k] > 1 {
			res.Rejected = append(res.Rejected, rec)
			rows = append(rows, i)
		}
		if !kept[k] {
			kept[k] = true
			res.Survivors = append(res.Survivors, rec)
		}
	}

	if len(rows) > 0 {
		res.Issue = &IssueMetadata{Kind: IssueDuplicate, Rows: rows}
	}
	return res, nil
}

// tupleKey encodes a record's values at attributes so that distinct tuples
// never collide. Null and empty string encode differently.
func tupleKey(rec Record, attributes []string) string {
	var b strings.Builder
	for _, attr := range attributes {
		v, _ := rec.Get(attr)
		if !v.Valid {
			b.WriteString("-|")
			continue
		}
		b.WriteString(strconv.Itoa(len(v.String)))
		b.WriteByte(':')
		b.WriteString(v.String)
		b.WriteByte('|')
	}
	return b.String()
}

// NullCheck rejects every record with a null or empty value at any of the
// attributes it declares. A record flagged by several attributes is rejected
// once. Survivors preserve batch order. Attributes no record declares are
// skipped and reported in the returned error; the result is still valid.
func NullCheck(batch Batch, attributes []string) (StageResult, error) {
	if len(attributes) == 0 || len(batch) == 0 {
		return passThrough(batch), nil
	}

	var errs []error
	active := make([]string, 0, len(attributes))
	for _, attr := range attributes {
		if !batchDeclares(batch, attr) {
			errs = append(errs, &RuleApplicationError{
				Stage:     StageNullChecked,
				Attribute: attr,
				Err:       ErrAttributeMissing,
			})
			continue
		}
		active = append(active, attr)
	}

	res := StageResult{Survivors: make(Batch, 0, len(batch))}
	var rows []int
	for i, rec := range batch {
		if hasEmpty(rec, active) {
			res.Rejected = append(res.Rejected, rec)
			rows = append(rows, i)
			continue
		}
		res.Survivors = append(res.Survivors, rec)
	}

	if len(rows) > 0 {
		res.Issue = &IssueMetadata{Kind: IssueNull, Rows: rows}
	}
	return res, errors.Join(errs...)
}

func hasEmpty(rec Record, attributes []string) bool {
	for _, attr := range attributes {
		if v, ok := rec.Get(attr); ok && v.IsEmpty() {
			return true
		}
	}
	return false
}

// Engine validates batches against a schema and a rule catalog.
// It holds no per-file state and is safe for sequential reuse.
type Engine struct {
	schema Schema
	rules  RuleCatalog
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(schema Schema, rules RuleCatalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{schema: schema, rules: rules, logger: logger}
}

// Schema returns the engine's schema.
func (e *Engine) Schema() Schema { return e.schema }

// Rules returns the engine's rule catalog.
func (e *Engine) Rules() RuleCatalog { return e.rules }

// Trim restricts every record to the schema. Extra columns are a structural
// warning: records stay in the batch, and rows whose dropped columns carried
// data are reported in a schema issue. An empty schema leaves the batch
// untouched, since there is nothing to validate against.
func (e *Engine) Trim(ctx context.Context, fileID string, batch Batch) (Batch, *IssueMetadata) {
	if e.schema.IsEmpty() {
		e.logger.WarnContext(ctx, "schema is empty, skipping column trim", "file", fileID)
		return batch, nil
	}

	out := make(Batch, len(batch))
	var rows []int
	extraCols := make(map[string]bool)
	for i, rec := range batch {
		trimmed, extra := e.schema.Trim(rec)
		out[i] = trimmed
		lost := false
		for _, c := range extra {
			extraCols[c] = true
			if v, _ := rec.Get(c); !v.IsEmpty() {
				lost = true
			}
		}
		if lost {
			rows = append(rows, i)
		}
	}

	if len(extraCols) > 0 {
		cols := make([]string, 0, len(extraCols))
		for c := range extraCols {
			cols = append(cols, c)
		}
		slices.Sort(cols)
		e.logger.WarnContext(ctx, "extra columns dropped",
			"file", fileID,
			"stage", StageLoaded,
			"columns", cols,
			"rows_with_data", len(rows),
		)
	}

	if len(rows) == 0 {
		return out, nil
	}
	return out, &IssueMetadata{Kind: IssueSchema, Rows: rows}
}

// Process trims the batch to the schema, looks up the file's rule set by
// category and partitions it. The schema issue, if any, precedes rule issues.
func (e *Engine) Process(ctx context.Context, fileID string, batch Batch) (Partition, error) {
	trimmed, schemaIssue := e.Trim(ctx, fileID, batch)

	category := e.rules.CategoryOf(fileID)
	rs := e.rules.RuleSet(category)
	if len(rs) == 0 {
		e.logger.InfoContext(ctx, "no rules declared for category", "file", fileID, "category", category)
	}

	p, err := e.Partition(ctx, fileID, trimmed, rs)
	if err != nil {
		return Partition{}, err
	}
	if schemaIssue != nil {
		p.Issues = append([]IssueMetadata{*schemaIssue}, p.Issues...)
	}
	return p, nil
}

// Partition runs phone normalization, the duplicate check and the null check,
// in that order, and returns the final clean batch, every rejected record once
// (by ID, in order of first rejection) and the issues in production order.
//
// The only error returned is context cancellation between stages; stage
// failures are logged and absorbed.
func (e *Engine) Partition(ctx context.Context, fileID string, batch Batch, rs RuleSet) (Partition, error) {
	log := e.logger.With("file", fileID)
	var p Partition
	seen := make(map[int]bool)
	reject := func(b Batch) {
		for _, r := range b {
			if !seen[r.ID] {
				seen[r.ID] = true
				p.Rejected = append(p.Rejected, r)
			}
		}
	}

	current := batch
	log.DebugContext(ctx, "stage", "stage", StageLoaded, "records", len(current))

	if attrs := rs.Attributes(TestPhoneNumber); len(attrs) > 0 {
		normalized, err := NormalizePhones(current, attrs)
		if err != nil {
			logStageError(ctx, log, StagePhoneNormalized, err)
		}
		current = normalized
	}
	log.DebugContext(ctx, "stage", "stage", StagePhoneNormalized, "records", len(current))

	if err := ctx.Err(); err != nil {
		return Partition{}, err
	}

	if attrs := rs.Attributes(TestDuplicate); len(attrs) > 0 {
		res, err := DuplicateCheck(current, attrs)
		if err != nil {
			logStageError(ctx, log, StageDuplicateChecked, err)
		}
		current = res.Survivors
		reject(res.Rejected)
		if res.Issue != nil {
			log.WarnContext(ctx, "duplicate records found", "attributes", attrs, "rows", len(res.Issue.Rows))
			p.Issues = append(p.Issues, *res.Issue)
		}
	}
	log.DebugContext(ctx, "stage", "stage", StageDuplicateChecked, "records", len(current))

	if err := ctx.Err(); err != nil {
		return Partition{}, err
	}

	if attrs := rs.Attributes(TestNull); len(attrs) > 0 {
		res, err := NullCheck(current, attrs)
		if err != nil {
			logStageError(ctx, log, StageNullChecked, err)
		}
		current = res.Survivors
		reject(res.Rejected)
		if res.Issue != nil {
			log.WarnContext(ctx, "null values found", "attributes", attrs, "rows", len(res.Issue.Rows))
			p.Issues = append(p.Issues, *res.Issue)
		}
	}
	log.DebugContext(ctx, "stage", "stage", StageNullChecked, "records", len(current))

	p.Clean = current
	log.InfoContext(ctx, "partitioned",
		"stage", StagePartitioned,
		"clean", len(p.Clean),
		"rejected", len(p.Rejected),
		"issues", len(p.Issues),
	)
	return p, nil
}

// logStageError logs each rule application failure with its stage and attribute.
func logStageError(ctx context.Context, log *slog.Logger, stage Stage, err error) {
	for _, e := range unjoin(err) {
		attrs := []any{"stage", stage, "error", e, "code", ErrorCode(e)}
		var ruleErr *RuleApplicationError
		if errors.As(e, &ruleErr) {
			attrs = append(attrs, "attribute", ruleErr.Attribute)
		}
		log.WarnContext(ctx, "rule application failed, stage skipped for attribute", attrs...)
	}
}

// unjoin splits an errors.Join result back into its parts.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
