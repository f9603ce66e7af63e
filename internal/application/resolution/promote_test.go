package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

func autoPromotable(score string) models.CandidateScoring {
	return models.CandidateScoring{
		QualityScore:    decPtr(score),
		ResolutionState: "auto_promote",
	}
}

func TestPromoterRun(t *testing.T) {
	db := setupPipelineDB(t)
	ctx := context.Background()

	clubCand := &models.CandidateClub{
		StableFingerprint: "fp-club",
		Name:              strPtr("Centerport Yacht Club"),
		NormalizedName:    strPtr("centerport yacht club"),
		CandidateScoring:  autoPromotable("0.97"),
	}
	require.NoError(t, db.Create(clubCand).Error)

	// a partial prior run left this club with a canonical and a link but
	// no promotion stamp
	priorCanonical := &models.CanonicalClub{
		Name:           strPtr("Huntington Yacht Club"),
		NormalizedName: strPtr("huntington yacht club"),
	}
	require.NoError(t, db.Create(priorCanonical).Error)
	linkedClub := &models.CandidateClub{
		StableFingerprint: "fp-club-linked",
		Name:              strPtr("Huntington Yacht Club"),
		NormalizedName:    strPtr("huntington yacht club"),
		CandidateScoring:  autoPromotable("0.96"),
	}
	require.NoError(t, db.Create(linkedClub).Error)
	require.NoError(t, db.Create(&models.CandidateCanonicalLink{
		CandidateEntityType: "club",
		CandidateEntityID:   linkedClub.ID,
		CanonicalEntityID:   priorCanonical.ID,
		PromotionMode:       "auto",
		PromotedBy:          "pipeline",
		PromotedAt:          time.Now().UTC(),
	}).Error)

	eventCand := &models.CandidateEvent{
		StableFingerprint:   "fp-event",
		EventName:           strPtr("Spring Invitational 2025"),
		NormalizedEventName: strPtr("spring invitational 2025"),
		SeasonYear:          intPtr(2025),
		CandidateScoring:    autoPromotable("0.99"),
	}
	require.NoError(t, db.Create(eventCand).Error)

	pendingEvent := &models.CandidateEvent{
		StableFingerprint:   "fp-event-pending",
		NormalizedEventName: strPtr("fall series 2025"),
		CandidateScoring:    models.CandidateScoring{ResolutionState: "review"},
	}
	require.NoError(t, db.Create(pendingEvent).Error)

	yachtCand := &models.CandidateYacht{
		StableFingerprint: "fp-yacht",
		Name:              strPtr("Windsong"),
		NormalizedName:    strPtr("windsong"),
		CandidateScoring:  models.CandidateScoring{ResolutionState: "review"},
	}
	require.NoError(t, db.Create(yachtCand).Error)

	partCand := &models.CandidateParticipant{
		StableFingerprint: "fp-part",
		DisplayName:       strPtr("Jane Doe"),
		NormalizedName:    strPtr("jane doe"),
		BestEmail:         strPtr("jane@example.com"),
		CandidateScoring:  autoPromotable("1"),
	}
	require.NoError(t, db.Create(partCand).Error)

	regCand := &models.CandidateRegistration{
		StableFingerprint:             "fp-reg",
		RegistrationExternalID:        strPtr("ys-4481"),
		CandidateEventID:              &eventCand.ID,
		CandidateYachtID:              &yachtCand.ID,
		CandidatePrimaryParticipantID: &partCand.ID,
		EntryStatus:                   strPtr("confirmed"),
		CandidateScoring:              autoPromotable("0.95"),
	}
	require.NoError(t, db.Create(regCand).Error)

	regPending := &models.CandidateRegistration{
		StableFingerprint: "fp-reg-pending",
		CandidateEventID:  &pendingEvent.ID,
		CandidateScoring:  autoPromotable("0.95"),
	}
	require.NoError(t, db.Create(regPending).Error)

	ctrs, err := NewPromoter(db, zap.NewNop()).Run(ctx, resolution.AllKinds)
	require.NoError(t, err)

	t.Run("counters", func(t *testing.T) {
		assert.Equal(t, 5, ctrs.CandidatesPromoted)
		assert.Equal(t, 0, ctrs.CandidatesAlreadyPromoted)
		assert.Equal(t, 1, ctrs.CandidatesSkippedMissingDep)
		assert.Equal(t, 0, ctrs.DBErrors)
		require.Len(t, ctrs.Warnings, 1)
		assert.Contains(t, ctrs.Warnings[0], "not yet promoted")
	})

	t.Run("candidates are stamped", func(t *testing.T) {
		require.NoError(t, db.Take(clubCand, "id = ?", clubCand.ID).Error)
		assert.True(t, clubCand.IsPromoted)
		require.NotNil(t, clubCand.PromotedCanonicalID)

		require.NoError(t, db.Take(linkedClub, "id = ?", linkedClub.ID).Error)
		assert.True(t, linkedClub.IsPromoted)
		require.NotNil(t, linkedClub.PromotedCanonicalID)
		assert.Equal(t, priorCanonical.ID, *linkedClub.PromotedCanonicalID)

		require.NoError(t, db.Take(regPending, "id = ?", regPending.ID).Error)
		assert.False(t, regPending.IsPromoted)
	})

	t.Run("canonical rows carry candidate attributes", func(t *testing.T) {
		var clubs []models.CanonicalClub
		require.NoError(t, db.Find(&clubs).Error)
		// one created for clubCand, one pre-existing reused for linkedClub
		assert.Len(t, clubs, 2)

		var canonEvent models.CanonicalEvent
		require.NoError(t, db.Take(&canonEvent).Error)
		assert.Equal(t, "Spring Invitational 2025", *canonEvent.EventName)
		assert.Equal(t, 2025, *canonEvent.SeasonYear)
		require.NotNil(t, canonEvent.CanonicalConfidenceScore)
		assert.True(t, canonEvent.CanonicalConfidenceScore.Equal(decimal.RequireFromString("0.99")))
	})

	t.Run("registration references resolve through canonical links", func(t *testing.T) {
		var canonReg models.CanonicalRegistration
		require.NoError(t, db.Take(&canonReg).Error)

		require.NoError(t, db.Take(eventCand, "id = ?", eventCand.ID).Error)
		require.NoError(t, db.Take(partCand, "id = ?", partCand.ID).Error)
		require.NotNil(t, canonReg.CanonicalEventID)
		assert.Equal(t, *eventCand.PromotedCanonicalID, *canonReg.CanonicalEventID)
		require.NotNil(t, canonReg.CanonicalPrimaryParticipantID)
		assert.Equal(t, *partCand.PromotedCanonicalID, *canonReg.CanonicalPrimaryParticipantID)
		// the yacht candidate was never auto-promotable
		assert.Nil(t, canonReg.CanonicalYachtID)
	})

	t.Run("links provenance and audit trail", func(t *testing.T) {
		var link models.CandidateCanonicalLink
		require.NoError(t, db.Where("candidate_entity_type = ? AND candidate_entity_id = ?", "club", clubCand.ID).
			Take(&link).Error)
		assert.Equal(t, "auto", link.PromotionMode)
		assert.Equal(t, "pipeline", link.PromotedBy)
		require.NotNil(t, link.PromotionScore)
		assert.True(t, link.PromotionScore.Equal(decimal.RequireFromString("0.97")))

		var prov []models.CanonicalAttributeProvenance
		require.NoError(t, db.Where("canonical_entity_type = ? AND canonical_entity_id = ?",
			"participant", *partCand.PromotedCanonicalID).Find(&prov).Error)
		assert.Len(t, prov, len(resolution.KindParticipant.ProvenanceAttrs()))
		for _, p := range prov {
			assert.Equal(t, "auto_promote", p.DecidedBy)
			require.NotNil(t, p.SourceCandidateID)
			assert.Equal(t, partCand.ID, *p.SourceCandidateID)
		}

		var logs []models.ResolutionManualActionLog
		require.NoError(t, db.Find(&logs).Error)
		assert.Len(t, logs, 5)
		for _, entry := range logs {
			assert.Equal(t, "promote", entry.Action)
			assert.Equal(t, "pipeline", entry.Actor)
			assert.Equal(t, "pipeline", entry.DecisionSource)
		}
	})

	t.Run("second run only counts the already promoted", func(t *testing.T) {
		again, err := NewPromoter(db, zap.NewNop()).Run(ctx, resolution.AllKinds)
		require.NoError(t, err)
		assert.Equal(t, 0, again.CandidatesPromoted)
		assert.Equal(t, 5, again.CandidatesAlreadyPromoted)
		assert.Equal(t, 1, again.CandidatesSkippedMissingDep)
	})

	t.Run("dependency resolves within a single later run", func(t *testing.T) {
		require.NoError(t, db.Model(pendingEvent).Update("resolution_state", "auto_promote").Error)

		again, err := NewPromoter(db, zap.NewNop()).Run(ctx, resolution.AllKinds)
		require.NoError(t, err)
		// the event promotes first, then the registration that was stuck
		assert.Equal(t, 2, again.CandidatesPromoted)
		assert.Equal(t, 0, again.CandidatesSkippedMissingDep)

		require.NoError(t, db.Take(regPending, "id = ?", regPending.ID).Error)
		assert.True(t, regPending.IsPromoted)
	})
}
