package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/dqm/internal/core"
)

// LoadEngine builds an engine from the schema and rule files. A missing or
// malformed file is logged and degrades to an empty catalog: with no schema
// records are not trimmed, with no rules every record is clean.
func LoadEngine(ctx context.Context, cfg Config, logger *slog.Logger) *core.Engine {
	schema, err := loadSchemaFile(cfg.SchemaFile)
	if err != nil {
		logger.ErrorContext(ctx, "schema unavailable, continuing with empty schema",
			"path", cfg.SchemaFile, "error", err, "code", core.ErrorCode(err))
	}
	if dups := schema.Redeclared(); len(dups) > 0 {
		logger.WarnContext(ctx, "schema declares fields more than once, last declaration wins",
			"path", cfg.SchemaFile, "fields", dups)
	}

	rules, err := loadRulesFile(cfg.RulesFile, cfg.suffixLen())
	if err != nil {
		logger.ErrorContext(ctx, "rules unavailable, continuing with no rules",
			"path", cfg.RulesFile, "error", err, "code", core.ErrorCode(err))
	}

	logger.InfoContext(ctx, "catalogs loaded",
		"fields", schema.Len(),
		"categories", rules.Len(),
	)
	return core.NewEngine(schema, rules, logger)
}

func loadSchemaFile(path string) (core.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Schema{}, &core.LoadError{Source: "schema", Err: err}
	}
	defer f.Close()
	return core.LoadSchema(f)
}

// loadRulesFile reads the CSV form, or the YAML form for .yaml/.yml files.
func loadRulesFile(path string, suffixLen int) (core.RuleCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.NewRuleCatalog(suffixLen), &core.LoadError{Source: "rules", Err: err}
	}
	defer f.Close()

	load := core.LoadRules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		load = core.LoadRulesYAML
	}
	return load(f, suffixLen)
}
