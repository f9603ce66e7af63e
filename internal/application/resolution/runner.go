package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/config"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
)

// errDryRunRollback aborts the outer transaction after a dry run so the
// counters survive but the writes do not.
var errDryRunRollback = errors.New("dry run rollback")

// RunResult is the outcome of one pipeline invocation, persisted as the
// JSON run report.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Counters   any       `json:"counters"`
}

// Runner drives the pipeline stages. Every stage runs inside a single
// outer transaction; --dry-run executes the full stage and rolls the
// transaction back at the end.
type Runner struct {
	db  *persistence.Database
	cfg *config.Config
	log *zap.Logger
}

func NewRunner(db *persistence.Database, cfg *config.Config, log *zap.Logger) *Runner {
	return &Runner{db: db, cfg: cfg, log: log}
}

func (r *Runner) run(
	ctx context.Context,
	mode string,
	dryRun bool,
	fn func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error),
) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
	}
	runCtx, log := logger.WithRunID(ctx, r.log, result.RunID)
	log.Info("pipeline run started", zap.String("mode", mode), zap.Bool("dry_run", dryRun))

	var runErr error
	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		var counters any
		counters, runErr = fn(runCtx, tx, log)
		result.Counters = counters
		if runErr != nil {
			return runErr
		}
		if dryRun {
			return errDryRunRollback
		}
		return nil
	})
	result.FinishedAt = time.Now().UTC()

	if txErr != nil && !errors.Is(txErr, errDryRunRollback) {
		log.Error("pipeline run failed", zap.Error(txErr))
		return result, txErr
	}
	log.Info("pipeline run finished",
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
	return result, nil
}

// Ingest builds candidates from the operational and raw source tables.
func (r *Runner) Ingest(ctx context.Context, kinds []resolution.Kind, dryRun bool) (*RunResult, *IngestCounters, error) {
	var ctrs *IngestCounters
	result, err := r.run(ctx, "resolution_ingest", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		var err error
		ctrs, err = NewIngestor(tx, log).Run(ctx, kinds)
		if err != nil {
			return ctrs, err
		}
		if rate, bad := exceedsRate(ctrs.DBErrors, ctrs.RowsProcessed(), r.cfg.Resolution.MaxDBErrorRate); bad {
			return ctrs, fmt.Errorf("db error rate %.4f exceeds max_db_error_rate %.4f, aborting run",
				rate, r.cfg.Resolution.MaxDBErrorRate)
		}
		return ctrs, nil
	})
	return result, ctrs, err
}

// Score loads rule sets and scores every candidate of the given kinds.
func (r *Runner) Score(ctx context.Context, kinds []resolution.Kind, ruleFile string, dryRun bool) (*RunResult, *ScoreCounters, error) {
	var ctrs *ScoreCounters
	result, err := r.run(ctx, "resolution_score", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		var err error
		ctrs, err = NewScorer(tx, log, r.cfg.Resolution.RulesDir, ruleFile).Run(ctx, kinds)
		if err != nil {
			return ctrs, err
		}
		rejectedRate, bad := exceedsRate(ctrs.CandidatesRejected, ctrs.CandidatesScored, r.cfg.Resolution.MaxRejectRate)
		if bad {
			return ctrs, fmt.Errorf("reject rate %.4f exceeds max_reject_rate %.4f, aborting run",
				rejectedRate, r.cfg.Resolution.MaxRejectRate)
		}
		if rate, bad := exceedsRate(ctrs.DBErrors, ctrs.CandidatesScored, r.cfg.Resolution.MaxDBErrorRate); bad {
			return ctrs, fmt.Errorf("db error rate %.4f exceeds max_db_error_rate %.4f, aborting run",
				rate, r.cfg.Resolution.MaxDBErrorRate)
		}
		return ctrs, nil
	})
	return result, ctrs, err
}

// Promote moves auto_promote candidates into the canonical tables.
func (r *Runner) Promote(ctx context.Context, kinds []resolution.Kind, dryRun bool) (*RunResult, *PromoteCounters, error) {
	var ctrs *PromoteCounters
	result, err := r.run(ctx, "resolution_promote", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		var err error
		ctrs, err = NewPromoter(tx, log).Run(ctx, kinds)
		return ctrs, err
	})
	return result, ctrs, err
}

// ManualApply imports a reviewer decision sheet. With rescore set, the
// kinds that had successful promotes are re-scored in the same
// transaction. validateOnly never opens a transaction.
func (r *Runner) ManualApply(ctx context.Context, path string, rescore, validateOnly, dryRun bool) (*RunResult, *ManualApplyCounters, error) {
	if validateOnly {
		result := &RunResult{
			RunID:     uuid.NewString(),
			Mode:      "resolution_manual_apply",
			StartedAt: time.Now().UTC(),
			DryRun:    dryRun,
		}
		ctrs := &ManualApplyCounters{}
		_, err := readDecisionSheet(path, ctrs)
		result.Counters = ctrs
		result.FinishedAt = time.Now().UTC()
		return result, ctrs, err
	}

	var ctrs *ManualApplyCounters
	result, err := r.run(ctx, "resolution_manual_apply", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		applied, affected, err := NewManualApplier(tx, log).Run(ctx, path, false)
		ctrs = applied
		if err != nil {
			return ctrs, err
		}
		if rescore && len(affected) > 0 {
			if _, err := NewScorer(tx, log, r.cfg.Resolution.RulesDir, "").Run(ctx, affected); err != nil {
				return ctrs, fmt.Errorf("rescore after apply: %w", err)
			}
		}
		return ctrs, nil
	})
	return result, ctrs, err
}

// Lifecycle applies merge, demote, unlink, or split corrections.
func (r *Runner) Lifecycle(ctx context.Context, op resolution.DecisionAction, path string, dryRun bool) (*RunResult, *LifecycleCounters, error) {
	var ctrs *LifecycleCounters
	result, err := r.run(ctx, "resolution_lifecycle", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		var err error
		ctrs, err = NewLifecycler(tx, log).Run(ctx, op, path)
		return ctrs, err
	})
	return result, ctrs, err
}

// Lineage computes coverage snapshots. purgeCheck tightens the default
// thresholds; callers gate deletion of legacy sources on AllPassed.
func (r *Runner) Lineage(
	ctx context.Context,
	kinds []resolution.Kind,
	canonicalThresholdPct, sourceThresholdPct float64,
	dryRun bool,
) (*RunResult, []CoverageResult, error) {
	var results []CoverageResult
	result, err := r.run(ctx, "resolution_lineage", dryRun, func(ctx context.Context, tx *gorm.DB, log *zap.Logger) (any, error) {
		var err error
		results, err = NewLineageReporter(tx, log).Run(ctx, kinds, canonicalThresholdPct, sourceThresholdPct, dryRun)
		return results, err
	})
	return result, results, err
}

func exceedsRate(numerator, denominator int, maxRate float64) (float64, bool) {
	if denominator == 0 || numerator == 0 {
		return 0, false
	}
	rate := float64(numerator) / float64(denominator)
	return rate, rate > maxRate
}
