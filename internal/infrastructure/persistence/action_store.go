package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// ActionStore owns next-best-action recommendations and the manual
// action audit log.
type ActionStore struct {
	db *gorm.DB
}

// NewActionStore creates a new ActionStore.
func NewActionStore(db *gorm.DB) *ActionStore {
	return &ActionStore{db: db}
}

// WithTx returns a new store instance bound to the given transaction.
func (s *ActionStore) WithTx(tx *gorm.DB) *ActionStore {
	return &ActionStore{db: tx}
}

// NBATarget is the target_entity_type value for a candidate of a kind.
func NBATarget(kind resolution.Kind) string {
	return kind.CandidateTable()
}

// DeleteOpenEnrichmentNBAs removes the scorer's own open enrichment
// recommendations for a candidate so the pass can rewrite them. Other
// NBA kinds and non-open rows are untouched.
func (s *ActionStore) DeleteOpenEnrichmentNBAs(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
) error {
	return s.db.WithContext(ctx).
		Where("target_entity_type = ? AND target_entity_id = ?", NBATarget(kind), candidateID).
		Where("status = ? AND action_type = ? AND recommended_channel = ?",
			"open", "enrich_candidate", "manual_enrichment").
		Delete(&models.NextBestAction{}).Error
}

// CreateNBA inserts an enrichment recommendation.
func (s *ActionStore) CreateNBA(ctx context.Context, nba *models.NextBestAction) error {
	return s.db.WithContext(ctx).Create(nba).Error
}

// DismissOpenNBAs marks every open recommendation for a candidate as
// dismissed. Used when the candidate's promotion state changes under a
// lifecycle correction.
func (s *ActionStore) DismissOpenNBAs(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
) error {
	return s.db.WithContext(ctx).Model(&models.NextBestAction{}).
		Where("target_entity_type = ? AND target_entity_id = ? AND status = ?",
			NBATarget(kind), candidateID, "open").
		Update("status", "dismissed").Error
}

// LogAction appends one audit row for a manual or pipeline decision.
func (s *ActionStore) LogAction(ctx context.Context, entry *models.ResolutionManualActionLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
