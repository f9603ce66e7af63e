package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// RuleSetStore owns the rule-set registry and score-run bookkeeping.
type RuleSetStore struct {
	db *gorm.DB
}

// NewRuleSetStore creates a new RuleSetStore.
func NewRuleSetStore(db *gorm.DB) *RuleSetStore {
	return &RuleSetStore{db: db}
}

// WithTx returns a new store instance bound to the given transaction.
func (s *RuleSetStore) WithTx(tx *gorm.DB) *RuleSetStore {
	return &RuleSetStore{db: tx}
}

// Register upserts a rule set into the registry and returns the id of
// the active row. Re-registering a hash that is already active is a
// no-op; a new hash deactivates the prior active rule set for the same
// (entity_type, source_system) pair.
func (s *RuleSetStore) Register(ctx context.Context, rs *resolution.RuleSet) (uuid.UUID, error) {
	var existing models.ResolutionRuleSet
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND COALESCE(source_system, '') = ? AND yaml_hash = ? AND is_active = ?",
			string(rs.EntityType), rs.SourceSystem, rs.YAMLHash, true).
		Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}

	err = s.db.WithContext(ctx).Model(&models.ResolutionRuleSet{}).
		Where("entity_type = ? AND COALESCE(source_system, '') = ? AND is_active = ?",
			string(rs.EntityType), rs.SourceSystem, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	row := models.ResolutionRuleSet{
		EntityType:  string(rs.EntityType),
		Version:     rs.Version,
		YAMLContent: rs.RawYAML,
		YAMLHash:    rs.YAMLHash,
		IsActive:    true,
		ActivatedAt: &now,
	}
	if rs.SourceSystem != "" {
		row.SourceSystem = &rs.SourceSystem
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

// OpenScoreRun inserts a running score-run row and returns its id.
func (s *RuleSetStore) OpenScoreRun(
	ctx context.Context,
	kind resolution.Kind,
	sourceScope *string,
	ruleSetID *uuid.UUID,
) (uuid.UUID, error) {
	run := models.ResolutionScoreRun{
		EntityType:  string(kind),
		SourceScope: sourceScope,
		RuleSetID:   ruleSetID,
		Status:      "running",
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return uuid.Nil, err
	}
	return run.ID, nil
}

// CloseScoreRun marks a score run finished with its final counters.
func (s *RuleSetStore) CloseScoreRun(
	ctx context.Context,
	runID uuid.UUID,
	status string,
	countersJSON string,
) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.ResolutionScoreRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":      status,
			"finished_at": now,
			"counters":    countersJSON,
			"updated_at":  now,
		}).Error
}
