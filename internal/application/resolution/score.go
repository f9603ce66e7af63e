package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// Scorer runs the score stage: it loads the YAML rule set per entity
// kind, registers it, scores every candidate, and rewrites enrichment
// recommendations as a pure function of the new score.
type Scorer struct {
	tx       *gorm.DB
	log      *zap.Logger
	rulesDir string
	ruleFile string

	candidates *persistence.ResolutionStore
	ruleSets   *persistence.RuleSetStore
	actions    *persistence.ActionStore
}

// NewScorer creates a Scorer bound to an open transaction. ruleFile
// overrides the per-kind default path and only applies to single-kind
// runs.
func NewScorer(tx *gorm.DB, log *zap.Logger, rulesDir, ruleFile string) *Scorer {
	return &Scorer{
		tx:         tx,
		log:        log,
		rulesDir:   rulesDir,
		ruleFile:   ruleFile,
		candidates: persistence.NewResolutionStore(tx),
		ruleSets:   persistence.NewRuleSetStore(tx),
		actions:    persistence.NewActionStore(tx),
	}
}

// candidateFeatures is one candidate prepared for scoring.
type candidateFeatures struct {
	ID         uuid.UUID
	IsPromoted bool
	Features   map[string]bool
}

func presentStr(v *string) bool  { return v != nil && *v != "" }
func presentInt(v *int) bool     { return v != nil }
func presentLen(v *float64) bool { return v != nil && *v != 0 }

// Run scores the requested kinds. Failures inside one kind close its
// score run as failed and continue with the next kind.
func (sc *Scorer) Run(ctx context.Context, kinds []resolution.Kind) (*ScoreCounters, error) {
	ctrs := &ScoreCounters{}
	single := len(kinds) == 1

	for _, kind := range kinds {
		path := filepath.Join(sc.rulesDir, string(kind)+".yml")
		if sc.ruleFile != "" && single {
			path = sc.ruleFile
		}
		ruleSet, err := resolution.LoadRuleSet(path)
		if err != nil {
			return ctrs, fmt.Errorf("load rule set for %s: %w", kind, err)
		}
		if ruleSet.EntityType != kind {
			return ctrs, fmt.Errorf("rule file %s declares entity_type %s, want %s", path, ruleSet.EntityType, kind)
		}

		ruleSetID, err := sc.ruleSets.Register(ctx, ruleSet)
		if err != nil {
			return ctrs, fmt.Errorf("register rule set for %s: %w", kind, err)
		}
		scope := ruleSet.SourceSystem
		runID, err := sc.ruleSets.OpenScoreRun(ctx, kind, &scope, &ruleSetID)
		if err != nil {
			return ctrs, fmt.Errorf("open score run for %s: %w", kind, err)
		}

		runCtx, log := logger.WithStage(ctx, sc.log, "score/"+string(kind))
		log.Info("scoring candidates", zap.String("rule_version", ruleSet.Version))

		status := "ok"
		if err := sc.scoreKind(runCtx, kind, ruleSet, runID, ctrs); err != nil {
			status = "failed"
			ctrs.DBErrors++
			ctrs.Warnf("score run for %s failed: %v", kind, err)
			log.Warn("score run failed", zap.Error(err))
		}

		countersJSON, _ := json.Marshal(map[string]any{
			"candidates_scored":       ctrs.CandidatesScored,
			"candidates_auto_promote": ctrs.CandidatesAutoPromote,
			"candidates_review":       ctrs.CandidatesReview,
			"candidates_hold":         ctrs.CandidatesHold,
			"candidates_rejected":     ctrs.CandidatesRejected,
			"nbas_written":            ctrs.NBAsWritten,
			"db_errors":               ctrs.DBErrors,
			"warnings":                ctrs.TruncatedWarnings(),
		})
		if err := sc.ruleSets.CloseScoreRun(ctx, runID, status, string(countersJSON)); err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("close score run for %s (%s): %v", kind, status, err)
		}
	}
	return ctrs, nil
}

func (sc *Scorer) scoreKind(
	ctx context.Context,
	kind resolution.Kind,
	ruleSet *resolution.RuleSet,
	runID uuid.UUID,
	ctrs *ScoreCounters,
) error {
	rows, err := sc.loadCandidates(ctx, kind)
	if err != nil {
		return err
	}
	for _, cand := range rows {
		err := sc.tx.Transaction(func(sp *gorm.DB) error {
			return sc.scoreCandidate(ctx, sp, kind, ruleSet, runID, cand, ctrs)
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("%s pk=%s: %v", kind, cand.ID, err)
		}
	}
	return nil
}

func (sc *Scorer) scoreCandidate(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	ruleSet *resolution.RuleSet,
	runID uuid.UUID,
	cand candidateFeatures,
	ctrs *ScoreCounters,
) error {
	candidates := sc.candidates.WithTx(sp)
	actions := sc.actions.WithTx(sp)

	result := ruleSet.ComputeScore(cand.Features, nil)
	reasons := result.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return err
	}
	if err := candidates.ApplyScore(ctx, kind, cand.ID, result.Score, result.State, string(reasonsJSON), runID); err != nil {
		return err
	}

	ctrs.CandidatesScored++
	effective := result.State
	if cand.IsPromoted {
		effective = resolution.StateAutoPromote
	}
	switch effective {
	case resolution.StateAutoPromote:
		ctrs.CandidatesAutoPromote++
	case resolution.StateReview:
		ctrs.CandidatesReview++
	case resolution.StateHold:
		ctrs.CandidatesHold++
	default:
		ctrs.CandidatesRejected++
	}

	written, err := sc.rewriteNBAs(ctx, actions, kind, ruleSet, cand, result)
	if err != nil {
		return err
	}
	ctrs.NBAsWritten += written
	return nil
}

// rewriteNBAs replaces the scorer's own open enrichment recommendations
// for one candidate. Promoted, auto-promotable, and hard-blocked
// candidates get none: enrichment would be pointless or misleading.
func (sc *Scorer) rewriteNBAs(
	ctx context.Context,
	actions *persistence.ActionStore,
	kind resolution.Kind,
	ruleSet *resolution.RuleSet,
	cand candidateFeatures,
	result resolution.ScoreResult,
) (int, error) {
	if err := actions.DeleteOpenEnrichmentNBAs(ctx, kind, cand.ID); err != nil {
		return 0, err
	}
	if result.State == resolution.StateAutoPromote || cand.IsPromoted || result.HardBlocked() {
		return 0, nil
	}

	inserted := 0
	for _, feature := range ruleSet.FeatureNames() {
		if cand.Features[feature] {
			continue
		}
		weight := ruleSet.FeatureWeights[feature]
		if !weight.IsPositive() {
			continue
		}
		detail := fmt.Sprintf("%s missing; worth +%s toward auto_promote", feature, weight.StringFixed(2))
		version := ruleSet.Version
		err := actions.CreateNBA(ctx, &models.NextBestAction{
			TargetEntityType:   persistence.NBATarget(kind),
			TargetEntityID:     cand.ID,
			ActionType:         "enrich_candidate",
			PriorityScore:      weight,
			ReasonCode:         "missing_" + feature,
			ReasonDetail:       &detail,
			RecommendedChannel: "manual_enrichment",
			Status:             "open",
			RuleVersion:        &version,
		})
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// loadCandidates fetches every candidate of a kind with its boolean
// feature vector, oldest first.
func (sc *Scorer) loadCandidates(ctx context.Context, kind resolution.Kind) ([]candidateFeatures, error) {
	db := sc.tx.WithContext(ctx).Order("created_at ASC")
	var out []candidateFeatures

	switch kind {
	case resolution.KindParticipant:
		var rows []models.CandidateParticipant
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, candidateFeatures{
				ID:         r.ID,
				IsPromoted: r.IsPromoted,
				Features: map[string]bool{
					"email_exact":           presentStr(r.BestEmail),
					"phone_exact":           presentStr(r.BestPhone),
					"dob_exact":             r.DateOfBirth != nil,
					"normalized_name_exact": presentStr(r.NormalizedName),
				},
			})
		}
	case resolution.KindYacht:
		var rows []models.CandidateYacht
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, candidateFeatures{
				ID:         r.ID,
				IsPromoted: r.IsPromoted,
				Features: map[string]bool{
					"sail_number_exact":   presentStr(r.NormalizedSailNumber),
					"name_normalized":     presentStr(r.NormalizedName),
					"yacht_type_present":  presentStr(r.YachtType),
					"length_feet_present": presentLen(r.LengthFeet),
				},
			})
		}
	case resolution.KindClub:
		var rows []models.CandidateClub
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, candidateFeatures{
				ID:         r.ID,
				IsPromoted: r.IsPromoted,
				Features: map[string]bool{
					"name_normalized":   presentStr(r.NormalizedName),
					"website_present":   presentStr(r.Website),
					"state_usa_present": presentStr(r.StateUSA),
					"phone_present":     presentStr(r.Phone),
				},
			})
		}
	case resolution.KindEvent:
		var rows []models.CandidateEvent
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, candidateFeatures{
				ID:         r.ID,
				IsPromoted: r.IsPromoted,
				Features: map[string]bool{
					"external_id_present": presentStr(r.EventExternalID),
					"season_year_present": presentInt(r.SeasonYear),
					"name_normalized":     presentStr(r.NormalizedEventName),
					"dates_present":       r.StartDate != nil || r.EndDate != nil,
				},
			})
		}
	case resolution.KindRegistration:
		var rows []models.CandidateRegistration
		if err := db.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, candidateFeatures{
				ID:         r.ID,
				IsPromoted: r.IsPromoted,
				Features: map[string]bool{
					"external_id_present":  presentStr(r.RegistrationExternalID),
					"event_resolved":       r.CandidateEventID != nil,
					"yacht_resolved":       r.CandidateYachtID != nil,
					"participant_resolved": r.CandidatePrimaryParticipantID != nil,
				},
			})
		}
	}
	return out, nil
}
