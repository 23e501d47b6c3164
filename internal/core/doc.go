// Package core provides the record validation and partitioning engine.
//
// This package is the heart of dqm, containing all rule logic independent of
// file formats, ledger storage or transport. It can be used by the pipeline,
// the HTTP API, or tests without modification.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Schema: the declared fields, loaded with [LoadSchema]. [Schema.Trim]
//     restricts a record to declared fields in canonical order.
//   - RuleCatalog: per file category, the attributes each test kind applies
//     to, loaded with [LoadRules] or [LoadRulesYAML]. A file's category is its
//     identifier minus a fixed-length timestamp suffix ([Category]).
//   - Stages: [NormalizePhones], [DuplicateCheck] and [NullCheck] are pure
//     functions over a [Batch].
//   - Engine: [Engine.Process] trims, looks up rules and runs the stages in a
//     fixed order, producing a [Partition].
//
// # Records
//
// A [Record] distinguishes a declared column holding null from a column that
// is not declared at all. Each record keeps its position in the file as read
// as its ID; rejected records are deduplicated by ID, so a record flagged by
// two stages appears once in [Partition.Rejected] but contributes one
// [IssueMetadata] per stage.
//
//	p, err := engine.Process(ctx, "customer_master_20240726129048.csv", batch)
//	// p.Clean    records that survived every stage
//	// p.Rejected records flagged by any stage
//	// p.Issues   one entry per stage that flagged rows
//
// # Error Handling
//
// Nothing in this package is fatal to a run. Malformed sources return a
// [LoadError] alongside an empty catalog; attributes that cannot be applied
// return a [RuleApplicationError] and the stage passes its batch through.
// [MapError] maps errors to support codes.
package core
