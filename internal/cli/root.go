package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appresolution "github.com/regatta/etl/internal/application/resolution"
	"github.com/regatta/etl/internal/infrastructure/config"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	LogLevel string
	DryRun   bool
}

// NewRootCommand builds the regatta-resolve command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "regatta-resolve",
		Short: "Candidate and canonical entity resolution pipeline",
		Long: `regatta-resolve runs the entity resolution stages over the regatta
operational database: ingest builds candidates from source rows, score
classifies them against YAML rule sets, promote materializes canonical
entities, manual-apply and lifecycle import reviewer decision sheets,
and lineage measures purge readiness.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "run the full stage and roll back all writes")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewPromoteCommand(opts))
	cmd.AddCommand(NewManualApplyCommand(opts))
	cmd.AddCommand(NewLifecycleCommand(opts))
	cmd.AddCommand(NewLineageCommand(opts))

	return cmd
}

// pipelineEnv bundles the shared dependencies of one CLI invocation.
type pipelineEnv struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *persistence.Database
	runner *appresolution.Runner
}

func (e *pipelineEnv) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.log != nil {
		_ = logger.Sync(e.log)
	}
}

func setupEnv(opts *RootOptions) (*pipelineEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log, err := logger.New(&logger.Config{
		Level:      level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(level),
		logger.WithIgnoreRecordNotFoundError(true))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		_ = logger.Sync(log)
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &pipelineEnv{
		cfg:    cfg,
		log:    log,
		db:     db,
		runner: appresolution.NewRunner(db, cfg, log),
	}, nil
}

// finishRun writes the JSON run report and prints the stage summary.
func finishRun(env *pipelineEnv, result *appresolution.RunResult, summary string) error {
	if result != nil {
		path, err := appresolution.WriteRunReport(env.cfg.Resolution.ReportsDir, result)
		if err != nil {
			env.log.Warn("run report not written", zap.Error(err))
		} else {
			env.log.Info("run report written", zap.String("path", path))
		}
	}
	fmt.Println(summary)
	return nil
}
