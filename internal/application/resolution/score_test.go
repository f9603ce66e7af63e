package resolution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

func TestScorerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("routes participants by threshold and rewrites recommendations", func(t *testing.T) {
		db := setupPipelineDB(t)

		full := &models.CandidateParticipant{
			StableFingerprint: "fp-full",
			DisplayName:       strPtr("Ann Walker"),
			NormalizedName:    strPtr("ann walker"),
			BestEmail:         strPtr("ann@example.com"),
			BestPhone:         strPtr("+15550001111"),
			DateOfBirth:       datePtr(1988, time.March, 2),
			CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
		}
		nameOnly := &models.CandidateParticipant{
			StableFingerprint: "fp-name",
			DisplayName:       strPtr("Bo Keel"),
			NormalizedName:    strPtr("bo keel"),
			CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
		}
		noDOB := &models.CandidateParticipant{
			StableFingerprint: "fp-nodob",
			DisplayName:       strPtr("Cleo Tiller"),
			NormalizedName:    strPtr("cleo tiller"),
			BestEmail:         strPtr("cleo@example.com"),
			BestPhone:         strPtr("+15550002222"),
			CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
		}
		require.NoError(t, db.Create(full).Error)
		require.NoError(t, db.Create(nameOnly).Error)
		require.NoError(t, db.Create(noDOB).Error)

		ctrs, err := NewScorer(db, zap.NewNop(), rulesFixtureDir(), "").
			Run(ctx, []resolution.Kind{resolution.KindParticipant})
		require.NoError(t, err)

		assert.Equal(t, 3, ctrs.CandidatesScored)
		assert.Equal(t, 1, ctrs.CandidatesAutoPromote)
		assert.Equal(t, 1, ctrs.CandidatesReview)
		assert.Equal(t, 0, ctrs.CandidatesHold)
		assert.Equal(t, 1, ctrs.CandidatesRejected)
		assert.Equal(t, 4, ctrs.NBAsWritten)
		assert.Equal(t, 0, ctrs.DBErrors)
		assert.Empty(t, ctrs.Warnings)

		require.NoError(t, db.Take(full, "id = ?", full.ID).Error)
		assert.Equal(t, "auto_promote", full.ResolutionState)
		assert.False(t, full.IsPromoted)
		require.NotNil(t, full.QualityScore)
		assert.True(t, full.QualityScore.Equal(decimal.NewFromInt(1)), full.QualityScore.String())
		assert.NotNil(t, full.LastScoreRunID)
		require.NotNil(t, full.ConfidenceReasons)
		assert.Contains(t, *full.ConfidenceReasons, "feature:email_exact")

		require.NoError(t, db.Take(nameOnly, "id = ?", nameOnly.ID).Error)
		assert.Equal(t, "reject", nameOnly.ResolutionState)
		require.NotNil(t, nameOnly.QualityScore)
		assert.True(t, nameOnly.QualityScore.IsZero(), nameOnly.QualityScore.String())
		assert.Contains(t, *nameOnly.ConfidenceReasons, "penalty:missing_email")

		require.NoError(t, db.Take(noDOB, "id = ?", noDOB.ID).Error)
		assert.Equal(t, "review", noDOB.ResolutionState)
		assert.True(t, noDOB.QualityScore.Equal(decimal.RequireFromString("0.85")), noDOB.QualityScore.String())

		// auto_promote candidates carry no enrichment recommendations
		var fullNBAs []models.NextBestAction
		require.NoError(t, db.Where("target_entity_id = ?", full.ID).Find(&fullNBAs).Error)
		assert.Empty(t, fullNBAs)

		var nameNBAs []models.NextBestAction
		require.NoError(t, db.Where("target_entity_id = ?", nameOnly.ID).Find(&nameNBAs).Error)
		codes := make([]string, 0, len(nameNBAs))
		for _, nba := range nameNBAs {
			codes = append(codes, nba.ReasonCode)
			assert.Equal(t, "candidate_participant", nba.TargetEntityType)
			assert.Equal(t, "enrich_candidate", nba.ActionType)
			assert.Equal(t, "manual_enrichment", nba.RecommendedChannel)
			assert.Equal(t, "open", nba.Status)
			require.NotNil(t, nba.RuleVersion)
			assert.Equal(t, "1.0.0", *nba.RuleVersion)
		}
		assert.ElementsMatch(t, []string{"missing_dob_exact", "missing_email_exact", "missing_phone_exact"}, codes)

		var ruleSets []models.ResolutionRuleSet
		require.NoError(t, db.Find(&ruleSets).Error)
		require.Len(t, ruleSets, 1)
		assert.Equal(t, "participant", ruleSets[0].EntityType)
		assert.True(t, ruleSets[0].IsActive)
		assert.NotNil(t, ruleSets[0].ActivatedAt)

		var runs []models.ResolutionScoreRun
		require.NoError(t, db.Find(&runs).Error)
		require.Len(t, runs, 1)
		assert.Equal(t, "ok", runs[0].Status)
		assert.NotNil(t, runs[0].FinishedAt)
		require.NotNil(t, runs[0].Counters)
		assert.Contains(t, *runs[0].Counters, `"candidates_scored":3`)

		// enrich and rescore: the old recommendations are rewritten
		require.NoError(t, db.Model(nameOnly).Update("best_email", "bo@example.com").Error)
		again, err := NewScorer(db, zap.NewNop(), rulesFixtureDir(), "").
			Run(ctx, []resolution.Kind{resolution.KindParticipant})
		require.NoError(t, err)
		assert.Equal(t, 1, again.CandidatesHold)
		assert.Equal(t, 0, again.CandidatesRejected)

		require.NoError(t, db.Take(nameOnly, "id = ?", nameOnly.ID).Error)
		assert.Equal(t, "hold", nameOnly.ResolutionState)
		// email 0.55 + name 0.10, minus the missing_phone penalty
		assert.True(t, nameOnly.QualityScore.Equal(decimal.RequireFromString("0.60")), nameOnly.QualityScore.String())

		nameNBAs = nil
		require.NoError(t, db.Where("target_entity_id = ?", nameOnly.ID).Find(&nameNBAs).Error)
		codes = nil
		for _, nba := range nameNBAs {
			codes = append(codes, nba.ReasonCode)
		}
		assert.ElementsMatch(t, []string{"missing_dob_exact", "missing_phone_exact"}, codes)

		// same YAML hash: the registered rule set is reused
		require.NoError(t, db.Find(&ruleSets).Error)
		assert.Len(t, ruleSets, 1)
		require.NoError(t, db.Find(&runs).Error)
		assert.Len(t, runs, 2)
	})

	t.Run("promoted candidates keep auto_promote and get no recommendations", func(t *testing.T) {
		db := setupPipelineDB(t)
		canonID := uuid.New()
		promoted := &models.CandidateParticipant{
			StableFingerprint: "fp-promoted",
			NormalizedName:    strPtr("dev helm"),
			CandidateScoring: models.CandidateScoring{
				ResolutionState:     "auto_promote",
				IsPromoted:          true,
				PromotedCanonicalID: &canonID,
			},
		}
		require.NoError(t, db.Create(promoted).Error)

		ctrs, err := NewScorer(db, zap.NewNop(), rulesFixtureDir(), "").
			Run(ctx, []resolution.Kind{resolution.KindParticipant})
		require.NoError(t, err)

		// the bare name would route to reject, but the promotion pins the
		// state and the counter
		assert.Equal(t, 1, ctrs.CandidatesAutoPromote)
		assert.Equal(t, 0, ctrs.CandidatesRejected)
		assert.Equal(t, 0, ctrs.NBAsWritten)

		require.NoError(t, db.Take(promoted, "id = ?", promoted.ID).Error)
		assert.Equal(t, "auto_promote", promoted.ResolutionState)
		assert.True(t, promoted.IsPromoted)
		require.NotNil(t, promoted.QualityScore)
		assert.True(t, promoted.QualityScore.IsZero())
	})

	t.Run("scores registrations with resolved references", func(t *testing.T) {
		db := setupPipelineDB(t)
		eventID := uuid.New()
		yachtID := uuid.New()
		partID := uuid.New()
		reg := &models.CandidateRegistration{
			StableFingerprint:             "fp-reg",
			RegistrationExternalID:        strPtr("ys-100"),
			CandidateEventID:              &eventID,
			CandidateYachtID:              &yachtID,
			CandidatePrimaryParticipantID: &partID,
			CandidateScoring:              models.CandidateScoring{ResolutionState: "review"},
		}
		require.NoError(t, db.Create(reg).Error)

		ctrs, err := NewScorer(db, zap.NewNop(), rulesFixtureDir(), "").
			Run(ctx, []resolution.Kind{resolution.KindRegistration})
		require.NoError(t, err)

		assert.Equal(t, 1, ctrs.CandidatesAutoPromote)
		require.NoError(t, db.Take(reg, "id = ?", reg.ID).Error)
		assert.Equal(t, "auto_promote", reg.ResolutionState)
		assert.True(t, reg.QualityScore.Equal(decimal.NewFromInt(1)), reg.QualityScore.String())
	})

	t.Run("rule file override must match the kind", func(t *testing.T) {
		db := setupPipelineDB(t)
		override := filepath.Join(rulesFixtureDir(), "yacht.yml")
		_, err := NewScorer(db, zap.NewNop(), rulesFixtureDir(), override).
			Run(ctx, []resolution.Kind{resolution.KindParticipant})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declares entity_type")
	})

	t.Run("missing rule file aborts the run", func(t *testing.T) {
		db := setupPipelineDB(t)
		_, err := NewScorer(db, zap.NewNop(), t.TempDir(), "").
			Run(ctx, []resolution.Kind{resolution.KindParticipant})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load rule set")
	})
}
