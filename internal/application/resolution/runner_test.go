package resolution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/config"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

func newTestRunner(t *testing.T) (*Runner, *gorm.DB) {
	t.Helper()
	db := setupPipelineDB(t)
	cfg := &config.Config{
		Resolution: config.ResolutionConfig{
			RulesDir:       rulesFixtureDir(),
			MaxDBErrorRate: 0.05,
			MaxRejectRate:  0.5,
			WarningLimit:   20,
		},
	}
	return NewRunner(&persistence.Database{DB: db}, cfg, zap.NewNop()), db
}

func TestRunnerIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run keeps the counters and rolls back the writes", func(t *testing.T) {
		runner, db := newTestRunner(t)
		seedIngestFixture(t, db)

		result, ctrs, err := runner.Ingest(ctx, resolution.AllKinds, true)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "resolution_ingest", result.Mode)
		assert.True(t, result.DryRun)
		assert.NotEmpty(t, result.RunID)
		assert.False(t, result.FinishedAt.Before(result.StartedAt))

		require.NotNil(t, ctrs)
		assert.Equal(t, 2, ctrs.Participants.CandidatesCreated)

		var count int64
		require.NoError(t, db.Model(&models.CandidateParticipant{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("a real run persists the candidates", func(t *testing.T) {
		runner, db := newTestRunner(t)
		seedIngestFixture(t, db)

		result, ctrs, err := runner.Ingest(ctx, resolution.AllKinds, false)
		require.NoError(t, err)
		assert.False(t, result.DryRun)
		assert.Equal(t, 2, ctrs.Participants.CandidatesCreated)

		var count int64
		require.NoError(t, db.Model(&models.CandidateParticipant{}).Count(&count).Error)
		assert.EqualValues(t, 2, count)
	})
}

func TestRunnerScoreAbortsOnRejectRate(t *testing.T) {
	ctx := context.Background()
	runner, db := newTestRunner(t)

	// a name-only candidate scores to zero and gets rejected; one reject
	// out of one scored blows past the configured rate
	cand := seedReviewParticipant(t, db, "fp-1", "bo keel", "review")
	require.NoError(t, db.Model(cand).Update("quality_score", nil).Error)

	result, ctrs, err := runner.Score(ctx, []resolution.Kind{resolution.KindParticipant}, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_reject_rate")
	require.NotNil(t, result)
	require.NotNil(t, ctrs)
	assert.Equal(t, 1, ctrs.CandidatesRejected)

	// the abort rolls everything back, including the score run record
	var runs int64
	require.NoError(t, db.Model(&models.ResolutionScoreRun{}).Count(&runs).Error)
	assert.Zero(t, runs)
	require.NoError(t, db.Take(cand, "id = ?", cand.ID).Error)
	assert.Equal(t, "review", cand.ResolutionState)
	assert.Nil(t, cand.QualityScore)
}

func TestRunnerManualApplyValidateOnly(t *testing.T) {
	ctx := context.Background()
	runner, db := newTestRunner(t)
	cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")

	sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
		"candidate_entity_type,candidate_entity_id,action,actor\n"+
			"participant,%s,promote,alice\n", cand.ID))
	result, ctrs, err := runner.ManualApply(ctx, sheet, false, true, false)
	require.NoError(t, err)
	assert.Equal(t, "resolution_manual_apply", result.Mode)
	assert.Equal(t, 1, ctrs.RowsRead)
	assert.Equal(t, 0, ctrs.RowsApplied)

	require.NoError(t, db.Take(cand, "id = ?", cand.ID).Error)
	assert.False(t, cand.IsPromoted)
}

func TestRunnerManualApplyRescores(t *testing.T) {
	ctx := context.Background()
	runner, db := newTestRunner(t)
	cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")

	sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
		"candidate_entity_type,candidate_entity_id,action,actor\n"+
			"participant,%s,promote,alice\n", cand.ID))
	_, ctrs, err := runner.ManualApply(ctx, sheet, true, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, ctrs.RowsApplied)

	// the rescore pass ran for the affected kind
	var runs int64
	require.NoError(t, db.Model(&models.ResolutionScoreRun{}).Count(&runs).Error)
	assert.EqualValues(t, 1, runs)
}

func TestExceedsRate(t *testing.T) {
	tests := []struct {
		name        string
		num, den    int
		max         float64
		wantRate    float64
		wantExceeds bool
	}{
		{"zero denominator", 3, 0, 0.05, 0, false},
		{"zero numerator", 0, 100, 0.05, 0, false},
		{"under the limit", 4, 100, 0.05, 0.04, false},
		{"at the limit", 5, 100, 0.05, 0.05, false},
		{"over the limit", 6, 100, 0.05, 0.06, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, exceeds := exceedsRate(tt.num, tt.den, tt.max)
			assert.InDelta(t, tt.wantRate, rate, 1e-9)
			assert.Equal(t, tt.wantExceeds, exceeds)
		})
	}
}
