package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// LineageStore answers the coverage queries behind lineage snapshots.
type LineageStore struct {
	db *gorm.DB
}

// NewLineageStore creates a new LineageStore.
func NewLineageStore(db *gorm.DB) *LineageStore {
	return &LineageStore{db: db}
}

// WithTx returns a new store instance bound to the given transaction.
func (s *LineageStore) WithTx(tx *gorm.DB) *LineageStore {
	return &LineageStore{db: tx}
}

// CountCandidates returns (total, promoted) for a kind.
func (s *LineageStore) CountCandidates(ctx context.Context, kind resolution.Kind) (int64, int64, error) {
	var total, promoted int64
	if err := s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("is_promoted = ?", true).
		Count(&promoted).Error; err != nil {
		return 0, 0, err
	}
	return total, promoted, nil
}

// CountLinkedSourceRows counts distinct source rows that carry a
// candidate link for the kind.
func (s *LineageStore) CountLinkedSourceRows(ctx context.Context, kind resolution.Kind) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CandidateSourceLink{}).
		Where("candidate_entity_type = ?", string(kind)).
		Distinct("source_table_name", "source_row_pk").
		Count(&count).Error
	return count, err
}

// CountUnresolvedRegistrationDeps counts promoted registrations whose
// referenced event candidate is not itself promoted.
func (s *LineageStore) CountUnresolvedRegistrationDeps(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM candidate_registration cr
		WHERE cr.is_promoted = ?
		  AND cr.candidate_event_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM candidate_event ce
		      WHERE ce.id = cr.candidate_event_id
		        AND ce.is_promoted = ?
		  )`, true, true).
		Scan(&count).Error
	return count, err
}

// InsertSnapshot records one coverage measurement.
func (s *LineageStore) InsertSnapshot(ctx context.Context, snap *models.LineageCoverageSnapshot) error {
	return s.db.WithContext(ctx).Create(snap).Error
}
