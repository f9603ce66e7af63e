package resolution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

func seedReviewParticipant(t *testing.T, db *gorm.DB, fp, name, state string) *models.CandidateParticipant {
	t.Helper()
	cand := &models.CandidateParticipant{
		StableFingerprint: fp,
		DisplayName:       strPtr(name),
		NormalizedName:    strPtr(name),
		CandidateScoring: models.CandidateScoring{
			QualityScore:    decPtr("0.80"),
			ResolutionState: state,
		},
	}
	require.NoError(t, db.Create(cand).Error)
	return cand
}

func TestManualApplierRun(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a mixed decision sheet", func(t *testing.T) {
		db := setupPipelineDB(t)
		pPromote := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")
		pReject := seedReviewParticipant(t, db, "fp-2", "bo keel", "review")
		pHold := seedReviewParticipant(t, db, "fp-3", "cleo marsh", "review")

		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor,reason_code\n"+
				"participant,%s,promote,alice,\n"+
				"participant,%s,reject,bob,duplicate\n"+
				"participant,%s,hold,bob,\n"+
				"participant,not-a-uuid,promote,alice,\n"+
				"participant,%s,merge,alice,\n",
			pPromote.ID, pReject.ID, pHold.ID, uuid.New()))

		ctrs, affected, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, false)
		require.NoError(t, err)
		assert.Equal(t, 5, ctrs.RowsRead)
		assert.Equal(t, 3, ctrs.RowsApplied)
		assert.Equal(t, 2, ctrs.RowsInvalid)
		assert.Equal(t, 0, ctrs.DBErrors)
		assert.Equal(t, []resolution.Kind{resolution.KindParticipant}, affected)

		require.NoError(t, db.Take(pPromote, "id = ?", pPromote.ID).Error)
		assert.True(t, pPromote.IsPromoted)
		require.NotNil(t, pPromote.PromotedCanonicalID)

		var link models.CandidateCanonicalLink
		require.NoError(t, db.Where("candidate_entity_id = ?", pPromote.ID).Take(&link).Error)
		assert.Equal(t, "manual", link.PromotionMode)
		assert.Equal(t, "alice", link.PromotedBy)

		require.NoError(t, db.Take(pReject, "id = ?", pReject.ID).Error)
		assert.Equal(t, "reject", pReject.ResolutionState)
		require.NoError(t, db.Take(pHold, "id = ?", pHold.ID).Error)
		assert.Equal(t, "hold", pHold.ResolutionState)

		var logs []models.ResolutionManualActionLog
		require.NoError(t, db.Find(&logs).Error)
		require.Len(t, logs, 3)
		for _, entry := range logs {
			assert.Equal(t, "sheet_import", entry.DecisionSource)
			require.NotNil(t, entry.Reason)
		}
		var rejectLog models.ResolutionManualActionLog
		require.NoError(t, db.Where("action = ?", "reject").Take(&rejectLog).Error)
		assert.Equal(t, "duplicate", *rejectLog.Reason)
		var promoteLog models.ResolutionManualActionLog
		require.NoError(t, db.Where("action = ?", "promote").Take(&promoteLog).Error)
		assert.Equal(t, "manual_review", *promoteLog.Reason)

		var prov []models.CanonicalAttributeProvenance
		require.NoError(t, db.Find(&prov).Error)
		assert.Len(t, prov, len(resolution.KindParticipant.ProvenanceAttrs()))
		for _, p := range prov {
			assert.Equal(t, "manual", p.DecidedBy)
		}
	})

	t.Run("promoted candidates are guarded", func(t *testing.T) {
		db := setupPipelineDB(t)
		cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")
		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"participant,%s,promote,alice\n", cand.ID))

		applier := NewManualApplier(db, zap.NewNop())
		_, _, err := applier.Run(ctx, sheet, false)
		require.NoError(t, err)

		// replaying the same sheet must not double-promote
		ctrs, affected, err := applier.Run(ctx, sheet, false)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrs.RowsSkippedAlreadyPromoted)
		assert.Equal(t, 0, ctrs.RowsApplied)
		assert.Empty(t, affected)

		reject := writeSheet(t, "reject.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"participant,%s,reject,alice\n", cand.ID))
		ctrs, _, err = applier.Run(ctx, reject, false)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrs.RowsInvalid)
		require.Len(t, ctrs.Warnings, 1)
		assert.Contains(t, ctrs.Warnings[0], "cannot change state of promoted candidate")
	})

	t.Run("rejected candidates cannot be promoted", func(t *testing.T) {
		db := setupPipelineDB(t)
		cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "reject")
		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"participant,%s,promote,alice\n", cand.ID))

		ctrs, _, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, false)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrs.RowsInvalid)
		require.Len(t, ctrs.Warnings, 1)
		assert.Contains(t, ctrs.Warnings[0], "blocked")
	})

	t.Run("registration promotes honor event dependencies", func(t *testing.T) {
		db := setupPipelineDB(t)

		promotedEvent := &models.CandidateEvent{
			StableFingerprint:   "fp-event-ok",
			EventName:           strPtr("Spring Invitational 2025"),
			NormalizedEventName: strPtr("spring invitational 2025"),
			CandidateScoring:    autoPromotable("0.99"),
		}
		pendingEvent := &models.CandidateEvent{
			StableFingerprint: "fp-event-pending",
			CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
		}
		require.NoError(t, db.Create(promotedEvent).Error)
		require.NoError(t, db.Create(pendingEvent).Error)
		_, err := NewPromoter(db, zap.NewNop()).Run(ctx, []resolution.Kind{resolution.KindEvent})
		require.NoError(t, err)

		mkReg := func(fp string, eventID *uuid.UUID) *models.CandidateRegistration {
			reg := &models.CandidateRegistration{
				StableFingerprint: fp,
				CandidateEventID:  eventID,
				CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
			}
			require.NoError(t, db.Create(reg).Error)
			return reg
		}
		regOK := mkReg("fp-reg-ok", &promotedEvent.ID)
		regPending := mkReg("fp-reg-pending", &pendingEvent.ID)
		regNoEvent := mkReg("fp-reg-none", nil)

		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"registration,%s,promote,alice\n"+
				"registration,%s,promote,alice\n"+
				"registration,%s,promote,alice\n",
			regOK.ID, regPending.ID, regNoEvent.ID))

		ctrs, affected, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, false)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrs.RowsApplied)
		assert.Equal(t, 1, ctrs.RowsSkippedMissingDep)
		assert.Equal(t, 1, ctrs.RowsInvalid)
		assert.Equal(t, []resolution.Kind{resolution.KindRegistration}, affected)

		require.NoError(t, db.Take(regOK, "id = ?", regOK.ID).Error)
		require.NotNil(t, regOK.PromotedCanonicalID)
		var canonReg models.CanonicalRegistration
		require.NoError(t, db.Take(&canonReg, "id = ?", *regOK.PromotedCanonicalID).Error)
		require.NoError(t, db.Take(promotedEvent, "id = ?", promotedEvent.ID).Error)
		require.NotNil(t, canonReg.CanonicalEventID)
		assert.Equal(t, *promotedEvent.PromotedCanonicalID, *canonReg.CanonicalEventID)
	})

	t.Run("stale canonical links are repaired", func(t *testing.T) {
		db := setupPipelineDB(t)
		cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")
		// link to a canonical row that no longer exists
		require.NoError(t, db.Create(&models.CandidateCanonicalLink{
			CandidateEntityType: "participant",
			CandidateEntityID:   cand.ID,
			CanonicalEntityID:   uuid.New(),
			PromotionMode:       "manual",
			PromotedBy:          "alice",
			PromotedAt:          time.Now().UTC(),
		}).Error)

		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"participant,%s,promote,alice\n", cand.ID))
		ctrs, _, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, false)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrs.RowsApplied)
		require.Len(t, ctrs.Warnings, 1)
		assert.Contains(t, ctrs.Warnings[0], "stale canonical link")

		require.NoError(t, db.Take(cand, "id = ?", cand.ID).Error)
		require.NotNil(t, cand.PromotedCanonicalID)
		var canon models.CanonicalParticipant
		require.NoError(t, db.Take(&canon, "id = ?", *cand.PromotedCanonicalID).Error)

		var links []models.CandidateCanonicalLink
		require.NoError(t, db.Where("candidate_entity_id = ?", cand.ID).Find(&links).Error)
		require.Len(t, links, 1)
		assert.Equal(t, *cand.PromotedCanonicalID, links[0].CanonicalEntityID)
	})

	t.Run("structural sheet problems abort the run", func(t *testing.T) {
		db := setupPipelineDB(t)
		sheet := writeSheet(t, "decisions.csv",
			"candidate_entity_type,candidate_entity_id,actor\nparticipant,x,alice\n")
		_, _, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required columns")
	})

	t.Run("validate only never touches the database", func(t *testing.T) {
		db := setupPipelineDB(t)
		cand := seedReviewParticipant(t, db, "fp-1", "ann walker", "review")
		sheet := writeSheet(t, "decisions.csv", fmt.Sprintf(
			"candidate_entity_type,candidate_entity_id,action,actor\n"+
				"participant,%s,promote,alice\n"+
				"participant,%s,promote,alice\n", cand.ID, "garbage"))

		ctrs, affected, err := NewManualApplier(db, zap.NewNop()).Run(ctx, sheet, true)
		require.NoError(t, err)
		assert.Equal(t, 2, ctrs.RowsRead)
		assert.Equal(t, 1, ctrs.RowsInvalid)
		assert.Equal(t, 0, ctrs.RowsApplied)
		assert.Empty(t, affected)

		require.NoError(t, db.Take(cand, "id = ?", cand.ID).Error)
		assert.False(t, cand.IsPromoted)
	})
}
