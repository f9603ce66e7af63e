package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// CanonicalStore owns canonical entities, candidate-canonical links,
// and per-attribute provenance.
type CanonicalStore struct {
	db *gorm.DB
}

// NewCanonicalStore creates a new CanonicalStore.
func NewCanonicalStore(db *gorm.DB) *CanonicalStore {
	return &CanonicalStore{db: db}
}

// WithTx returns a new store instance bound to the given transaction.
func (s *CanonicalStore) WithTx(tx *gorm.DB) *CanonicalStore {
	return &CanonicalStore{db: tx}
}

// registrationRefColumn maps a kind to the canonical_registration
// column that references it. Clubs and registrations are not referenced.
func registrationRefColumn(kind resolution.Kind) string {
	switch kind {
	case resolution.KindEvent:
		return "canonical_event_id"
	case resolution.KindYacht:
		return "canonical_yacht_id"
	case resolution.KindParticipant:
		return "canonical_primary_participant_id"
	}
	return ""
}

// CreateCanonical inserts a canonical row from a column map and returns
// the new id.
func (s *CanonicalStore) CreateCanonical(
	ctx context.Context,
	kind resolution.Kind,
	fields map[string]any,
) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	row := map[string]any{"id": id, "created_at": now, "updated_at": now}
	for col, val := range fields {
		if val != nil {
			row[col] = val
		}
	}
	if err := s.db.WithContext(ctx).Table(kind.CanonicalTable()).Create(row).Error; err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetCanonical loads a canonical row as a column map, or nil when the
// row does not exist.
func (s *CanonicalStore) GetCanonical(
	ctx context.Context,
	kind resolution.Kind,
	id uuid.UUID,
) (map[string]any, error) {
	row := map[string]any{}
	err := s.db.WithContext(ctx).Table(kind.CanonicalTable()).
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteCanonical removes a canonical row and its attribute provenance.
func (s *CanonicalStore) DeleteCanonical(
	ctx context.Context,
	kind resolution.Kind,
	id uuid.UUID,
) error {
	if err := s.db.WithContext(ctx).
		Where("canonical_entity_type = ? AND canonical_entity_id = ?", string(kind), id).
		Delete(&models.CanonicalAttributeProvenance{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Exec("DELETE FROM "+kind.CanonicalTable()+" WHERE id = ?", id).Error
}

// FillCanonicalNulls copies values onto the target canonical row for
// every listed attribute whose target column is currently null.
// Returns the attribute names that were filled.
func (s *CanonicalStore) FillCanonicalNulls(
	ctx context.Context,
	kind resolution.Kind,
	targetID uuid.UUID,
	values map[string]any,
) ([]string, error) {
	current, err := s.GetCanonical(ctx, kind, targetID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, gorm.ErrRecordNotFound
	}
	updates := map[string]any{}
	var filled []string
	for _, attr := range kind.ProvenanceAttrs() {
		val, ok := values[attr]
		if !ok || val == nil {
			continue
		}
		if current[attr] == nil {
			updates[attr] = val
			filled = append(filled, attr)
		}
	}
	if len(filled) == 0 {
		return nil, nil
	}
	updates["updated_at"] = time.Now().UTC()
	err = s.db.WithContext(ctx).Table(kind.CanonicalTable()).
		Where("id = ?", targetID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return filled, nil
}

// CloneCanonical copies a canonical row into a fresh one, carrying the
// kind's clone columns. Used by split.
func (s *CanonicalStore) CloneCanonical(
	ctx context.Context,
	kind resolution.Kind,
	fromID uuid.UUID,
) (uuid.UUID, error) {
	src, err := s.GetCanonical(ctx, kind, fromID)
	if err != nil {
		return uuid.Nil, err
	}
	if src == nil {
		return uuid.Nil, gorm.ErrRecordNotFound
	}
	fields := map[string]any{}
	for _, col := range kind.CloneColumns() {
		fields[col] = src[col]
	}
	return s.CreateCanonical(ctx, kind, fields)
}

// GetLink loads a candidate's canonical link, or nil when the candidate
// is unlinked.
func (s *CanonicalStore) GetLink(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
) (*models.CandidateCanonicalLink, error) {
	var link models.CandidateCanonicalLink
	err := s.db.WithContext(ctx).
		Where("candidate_entity_type = ? AND candidate_entity_id = ?", string(kind), candidateID).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// UpsertLink creates or repoints the canonical link for a candidate.
func (s *CanonicalStore) UpsertLink(ctx context.Context, link *models.CandidateCanonicalLink) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "candidate_entity_type"},
				{Name: "candidate_entity_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"canonical_entity_id", "promotion_score", "promotion_mode",
				"promoted_by", "promoted_at", "updated_at",
			}),
		}).
		Create(link).Error
}

// CreateLinkIfAbsent inserts the canonical link only when the candidate
// has none. Returns whether a link was inserted.
func (s *CanonicalStore) CreateLinkIfAbsent(ctx context.Context, link *models.CandidateCanonicalLink) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "candidate_entity_type"},
				{Name: "candidate_entity_id"},
			},
			DoNothing: true,
		}).
		Create(link)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteLink removes the canonical link of a candidate.
func (s *CanonicalStore) DeleteLink(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
) error {
	return s.db.WithContext(ctx).
		Where("candidate_entity_type = ? AND candidate_entity_id = ?", string(kind), candidateID).
		Delete(&models.CandidateCanonicalLink{}).Error
}

// LinkCount counts candidates linked to a canonical entity.
func (s *CanonicalStore) LinkCount(
	ctx context.Context,
	kind resolution.Kind,
	canonicalID uuid.UUID,
) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CandidateCanonicalLink{}).
		Where("candidate_entity_type = ? AND canonical_entity_id = ?", string(kind), canonicalID).
		Count(&count).Error
	return count, err
}

// ListLinkedCandidateIDs returns the candidates linked to a canonical
// entity, oldest link first.
func (s *CanonicalStore) ListLinkedCandidateIDs(
	ctx context.Context,
	kind resolution.Kind,
	canonicalID uuid.UUID,
) ([]uuid.UUID, error) {
	var links []models.CandidateCanonicalLink
	err := s.db.WithContext(ctx).
		Where("candidate_entity_type = ? AND canonical_entity_id = ?", string(kind), canonicalID).
		Order("created_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(links))
	for i, l := range links {
		ids[i] = l.CandidateEntityID
	}
	return ids, nil
}

// RelinkCanonical repoints every link and every candidate promotion
// reference from one canonical id to another. Used by merge.
func (s *CanonicalStore) RelinkCanonical(
	ctx context.Context,
	kind resolution.Kind,
	fromID, toID uuid.UUID,
) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&models.CandidateCanonicalLink{}).
		Where("candidate_entity_type = ? AND canonical_entity_id = ?", string(kind), fromID).
		Updates(map[string]any{"canonical_entity_id": toID, "updated_at": now}).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("promoted_canonical_id = ?", fromID).
		Updates(map[string]any{"promoted_canonical_id": toID, "updated_at": now}).Error
}

// RerouteRegistrationRefs repoints canonical_registration references
// from one canonical entity to another. No-op for kinds that
// registrations do not reference.
func (s *CanonicalStore) RerouteRegistrationRefs(
	ctx context.Context,
	kind resolution.Kind,
	fromID, toID uuid.UUID,
) error {
	col := registrationRefColumn(kind)
	if col == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.CanonicalRegistration{}).
		Where(col+" = ?", fromID).
		Updates(map[string]any{col: toID, "updated_at": time.Now().UTC()}).Error
}

// ClearRegistrationRefs nulls canonical_registration references to a
// canonical entity that is being deleted.
func (s *CanonicalStore) ClearRegistrationRefs(
	ctx context.Context,
	kind resolution.Kind,
	canonicalID uuid.UUID,
) error {
	col := registrationRefColumn(kind)
	if col == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.CanonicalRegistration{}).
		Where(col+" = ?", canonicalID).
		Updates(map[string]any{col: nil, "updated_at": time.Now().UTC()}).Error
}

// UpsertProvenance records or overwrites the provenance of one
// canonical attribute.
func (s *CanonicalStore) UpsertProvenance(ctx context.Context, p *models.CanonicalAttributeProvenance) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "canonical_entity_type"},
				{Name: "canonical_entity_id"},
				{Name: "attribute_name"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_candidate_id", "source_system", "decided_by", "decided_at", "updated_at",
			}),
		}).
		Create(p).Error
}

// WriteProvenance writes provenance rows for the given attributes of a
// canonical entity, all decided by the same actor at the same instant.
func (s *CanonicalStore) WriteProvenance(
	ctx context.Context,
	kind resolution.Kind,
	canonicalID uuid.UUID,
	attrs []string,
	sourceCandidateID *uuid.UUID,
	sourceSystem *string,
	decidedBy string,
) error {
	now := time.Now().UTC()
	for _, attr := range attrs {
		p := &models.CanonicalAttributeProvenance{
			CanonicalEntityType: string(kind),
			CanonicalEntityID:   canonicalID,
			AttributeName:       attr,
			SourceCandidateID:   sourceCandidateID,
			SourceSystem:        sourceSystem,
			DecidedBy:           decidedBy,
			DecidedAt:           now,
		}
		if err := s.UpsertProvenance(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
