package resolution

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// CoverageResult is the lineage coverage measurement for one entity
// type.
type CoverageResult struct {
	EntityType              resolution.Kind `json:"entity_type"`
	CandidatesTotal         int             `json:"candidates_total"`
	CandidatesPromoted      int             `json:"candidates_promoted"`
	PctCandidateToCanonical *float64        `json:"pct_candidate_to_canonical"`
	SourceRowsInLinkTable   *int            `json:"source_rows_in_link_table"`
	SourceRowsWithCandidate *int            `json:"source_rows_with_candidate"`
	PctSourceToCandidate    *float64        `json:"pct_source_to_candidate"`
	UnresolvedCriticalDeps  int             `json:"unresolved_critical_deps"`
	ThresholdsPassed        bool            `json:"thresholds_passed"`
	ThresholdCanonicalPct   float64         `json:"threshold_canonical_pct"`
	ThresholdSourcePct      float64         `json:"threshold_source_pct"`
	Notes                   []string        `json:"notes"`
}

// LineageReporter computes per-kind coverage metrics and records them
// as lineage_coverage_snapshot rows for purge-readiness audits.
type LineageReporter struct {
	tx      *gorm.DB
	log     *zap.Logger
	lineage *persistence.LineageStore
}

func NewLineageReporter(tx *gorm.DB, log *zap.Logger) *LineageReporter {
	return &LineageReporter{
		tx:      tx,
		log:     log,
		lineage: persistence.NewLineageStore(tx),
	}
}

// Run measures coverage for the requested kinds and, unless dryRun,
// inserts one snapshot row per kind.
func (r *LineageReporter) Run(
	ctx context.Context,
	kinds []resolution.Kind,
	canonicalThresholdPct, sourceThresholdPct float64,
	dryRun bool,
) ([]CoverageResult, error) {
	runCtx, log := logger.WithStage(ctx, r.log, "lineage")
	var results []CoverageResult
	for _, kind := range kinds {
		result, err := r.computeCoverage(runCtx, kind, canonicalThresholdPct, sourceThresholdPct)
		if err != nil {
			return results, fmt.Errorf("coverage for %s: %w", kind, err)
		}
		results = append(results, result)
		if !dryRun {
			if err := r.insertSnapshot(runCtx, result); err != nil {
				return results, fmt.Errorf("snapshot for %s: %w", kind, err)
			}
		}
		log.Info("coverage computed",
			zap.String("entity_type", string(kind)),
			zap.Int("candidates_total", result.CandidatesTotal),
			zap.Int("candidates_promoted", result.CandidatesPromoted),
			zap.Bool("thresholds_passed", result.ThresholdsPassed))
	}
	return results, nil
}

// AllPassed reports whether every result met its thresholds. The purge
// check gates on this.
func AllPassed(results []CoverageResult) bool {
	for _, r := range results {
		if !r.ThresholdsPassed {
			return false
		}
	}
	return true
}

func (r *LineageReporter) computeCoverage(
	ctx context.Context,
	kind resolution.Kind,
	canonicalThresholdPct, sourceThresholdPct float64,
) (CoverageResult, error) {
	result := CoverageResult{
		EntityType:            kind,
		ThresholdCanonicalPct: canonicalThresholdPct,
		ThresholdSourcePct:    sourceThresholdPct,
	}

	total, promoted, err := r.lineage.CountCandidates(ctx, kind)
	if err != nil {
		return result, err
	}
	result.CandidatesTotal = int(total)
	result.CandidatesPromoted = int(promoted)
	if total > 0 {
		pct := math.Round(float64(promoted)/float64(total)*10000) / 100
		result.PctCandidateToCanonical = &pct
	}

	// candidate_source_link only stores rows that are already linked to a
	// candidate, so there is no unlinked-source denominator and the
	// source coverage ratio cannot be computed from this table alone. The
	// distinct linked-row count is reported for information only.
	linked, err := r.lineage.CountLinkedSourceRows(ctx, kind)
	if err != nil {
		return result, err
	}
	if linked > 0 {
		n := int(linked)
		result.SourceRowsInLinkTable = &n
		result.SourceRowsWithCandidate = &n
	}

	if kind == resolution.KindRegistration {
		deps, err := r.lineage.CountUnresolvedRegistrationDeps(ctx)
		if err != nil {
			return result, err
		}
		result.UnresolvedCriticalDeps = int(deps)
	}

	canonOK := result.PctCandidateToCanonical != nil &&
		*result.PctCandidateToCanonical >= canonicalThresholdPct
	result.ThresholdsPassed = canonOK && result.UnresolvedCriticalDeps == 0

	if result.PctCandidateToCanonical == nil {
		result.Notes = append(result.Notes, "no candidates found, pct_candidate_to_canonical is null")
	}
	result.Notes = append(result.Notes,
		"source coverage ratio not measurable (candidate_source_link stores only linked rows)")
	if result.UnresolvedCriticalDeps > 0 {
		result.Notes = append(result.Notes,
			fmt.Sprintf("%d promoted registrations have un-promoted events", result.UnresolvedCriticalDeps))
	}
	return result, nil
}

func (r *LineageReporter) insertSnapshot(ctx context.Context, result CoverageResult) error {
	var notes *string
	if len(result.Notes) > 0 {
		joined := strings.Join(result.Notes, "\n")
		notes = &joined
	}
	return r.lineage.InsertSnapshot(ctx, &models.LineageCoverageSnapshot{
		EntityType:                  string(result.EntityType),
		CandidatesTotal:             result.CandidatesTotal,
		CandidatesLinkedToCanonical: result.CandidatesPromoted,
		PctCandidateToCanonical:     result.PctCandidateToCanonical,
		SourceRowsInLinkTable:       result.SourceRowsInLinkTable,
		SourceRowsWithCandidate:     result.SourceRowsWithCandidate,
		PctSourceToCandidate:        result.PctSourceToCandidate,
		ThresholdCanonicalPct:       result.ThresholdCanonicalPct,
		ThresholdSourcePct:          result.ThresholdSourcePct,
		UnresolvedCriticalDeps:      result.UnresolvedCriticalDeps,
		ThresholdsPassed:            result.ThresholdsPassed,
		Notes:                       notes,
	})
}
