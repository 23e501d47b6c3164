package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqm/internal/config"
	"github.com/JonMunkholm/dqm/internal/ledger"
	"github.com/JonMunkholm/dqm/internal/logging"
	"github.com/JonMunkholm/dqm/internal/pipeline"
)

// app holds state resolved by the root command before any subcommand runs.
type app struct {
	cfg     *config.Config
	logFile io.Closer
}

// overrides are the root flags that take precedence over the environment.
type overrides struct {
	envFile       string
	sourceDir     string
	outputDir     string
	schemaFile    string
	rulesFile     string
	ledgerBackend string
	ledgerPath    string
	logLevel      string
	logFormat     string
	logFile       string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var o overrides

	rootCmd := &cobra.Command{
		Use:           "dqm",
		Short:         "Data quality checks for upstream CSV drops",
		Long:          "dqm scans a source directory for new CSV files, validates each against a schema and per-category rules, and writes clean, rejected and metadata outputs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd, o)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.logFile != nil {
				return a.logFile.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.envFile, "env-file", ".env", "dotenv file to load; missing files are ignored")
	flags.StringVar(&o.sourceDir, "source", "", "source directory (overrides DQM_SOURCE_DIR)")
	flags.StringVar(&o.outputDir, "output-dir", "", "output directory (overrides DQM_OUTPUT_DIR)")
	flags.StringVar(&o.schemaFile, "schema", "", "schema file (overrides DQM_SCHEMA_FILE)")
	flags.StringVar(&o.rulesFile, "rules", "", "rule config, .csv or .yaml (overrides DQM_RULES_FILE)")
	flags.StringVar(&o.ledgerBackend, "ledger", "", "ledger backend: csv, sqlite, postgres, memory (overrides LEDGER_BACKEND)")
	flags.StringVar(&o.ledgerPath, "ledger-path", "", "ledger file for csv and sqlite (overrides LEDGER_PATH)")
	flags.StringVar(&o.logLevel, "log-level", "", "debug, info, warn, error (overrides LOG_LEVEL)")
	flags.StringVar(&o.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")
	flags.StringVar(&o.logFile, "log-file", "", "also append logs to this file (overrides LOG_FILE)")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newLedgerCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// init resolves configuration with precedence flag > env (.env included) >
// default, then installs the logger.
func (a *app) init(cmd *cobra.Command, o overrides) error {
	if err := godotenv.Overload(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("source", &cfg.Paths.SourceDir, o.sourceDir)
	set("output-dir", &cfg.Paths.OutputDir, o.outputDir)
	set("schema", &cfg.Paths.SchemaFile, o.schemaFile)
	set("rules", &cfg.Paths.RulesFile, o.rulesFile)
	set("ledger", &cfg.Ledger.Backend, o.ledgerBackend)
	set("ledger-path", &cfg.Ledger.Path, o.ledgerPath)
	set("log-level", &cfg.Logging.Level, o.logLevel)
	set("log-format", &cfg.Logging.Format, o.logFormat)
	set("log-file", &cfg.Logging.File, o.logFile)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logFile = closer

	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

func (a *app) ledgerOptions() ledger.Options {
	l := a.cfg.Ledger
	return ledger.Options{
		Backend:         strings.ToLower(l.Backend),
		Path:            l.Path,
		URL:             l.URL,
		MaxConns:        l.MaxConns,
		MinConns:        l.MinConns,
		MaxConnLifetime: l.MaxConnLifetime,
		MaxConnIdleTime: l.MaxConnIdleTime,
	}
}

func (a *app) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		SourceDir:         a.cfg.Paths.SourceDir,
		OutputDir:         a.cfg.Paths.OutputDir,
		SchemaFile:        a.cfg.Paths.SchemaFile,
		RulesFile:         a.cfg.Paths.RulesFile,
		CategorySuffixLen: a.cfg.Rules.CategorySuffixLen,
	}
}

// openRunner opens the configured ledger and builds a runner on it. The
// caller closes the returned ledger.
func (a *app) openRunner(ctx context.Context) (*pipeline.Runner, ledger.Ledger, error) {
	l, err := ledger.Open(ctx, a.ledgerOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	return pipeline.NewRunner(a.pipelineConfig(), l, pipeline.WithLogger(slog.Default())), l, nil
}
