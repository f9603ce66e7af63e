package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// ResolutionStore owns candidate rows, their source links, and the
// participant child tables.
type ResolutionStore struct {
	db *gorm.DB
}

// NewResolutionStore creates a new ResolutionStore.
func NewResolutionStore(db *gorm.DB) *ResolutionStore {
	return &ResolutionStore{db: db}
}

// WithTx returns a new store instance bound to the given transaction.
func (s *ResolutionStore) WithTx(tx *gorm.DB) *ResolutionStore {
	return &ResolutionStore{db: tx}
}

func parseRowID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case []byte:
		return uuid.ParseBytes(id)
	case string:
		return uuid.Parse(id)
	default:
		return uuid.Nil, fmt.Errorf("unexpected id type %T", v)
	}
}

// UpsertCandidate inserts a candidate keyed by stable fingerprint, or
// fills only the null columns of the existing row. Returns the
// candidate id and whether a new row was created.
func (s *ResolutionStore) UpsertCandidate(
	ctx context.Context,
	kind resolution.Kind,
	fingerprint string,
	fields map[string]any,
) (uuid.UUID, bool, error) {
	table := kind.CandidateTable()
	now := time.Now().UTC()

	existing := map[string]any{}
	err := s.db.WithContext(ctx).Table(table).
		Where("stable_fingerprint = ?", fingerprint).
		Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		id := uuid.New()
		row := map[string]any{
			"id":                 id,
			"stable_fingerprint": fingerprint,
			"resolution_state":   string(resolution.StateReview),
			"is_promoted":        false,
			"created_at":         now,
			"updated_at":         now,
		}
		for col, val := range fields {
			if val != nil {
				row[col] = val
			}
		}
		if err := s.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
			return uuid.Nil, false, err
		}
		return id, true, nil
	}

	id, err := parseRowID(existing["id"])
	if err != nil {
		return uuid.Nil, false, err
	}
	updates := map[string]any{"updated_at": now}
	for col, val := range fields {
		if val == nil {
			continue
		}
		if existing[col] == nil {
			updates[col] = val
		}
	}
	if err := s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return uuid.Nil, false, err
	}
	return id, false, nil
}

// LinkSource records that a candidate was observed in a specific source
// row. Duplicate links are skipped; the return value reports whether a
// new link was inserted.
func (s *ResolutionStore) LinkSource(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
	sourceTable, sourcePK string,
	sourceSystem string,
	rowHash *string,
) (bool, error) {
	link := models.CandidateSourceLink{
		CandidateEntityType: string(kind),
		CandidateEntityID:   candidateID,
		SourceTableName:     sourceTable,
		SourceRowPK:         sourcePK,
		SourceRowHash:       rowHash,
		LinkScore:           decimal.NewFromInt(1),
	}
	if sourceSystem != "" {
		link.SourceSystem = &sourceSystem
	}
	reason := "{}"
	link.LinkReason = &reason

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "candidate_entity_type"},
				{Name: "candidate_entity_id"},
				{Name: "source_table_name"},
				{Name: "source_row_pk"},
			},
			DoNothing: true,
		}).
		Create(&link)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CandidateIDForSource resolves the candidate linked to a source row,
// or nil when the source row was never ingested.
func (s *ResolutionStore) CandidateIDForSource(
	ctx context.Context,
	kind resolution.Kind,
	sourceTable, sourcePK string,
) (*uuid.UUID, error) {
	var link models.CandidateSourceLink
	err := s.db.WithContext(ctx).
		Where("source_table_name = ? AND source_row_pk = ? AND candidate_entity_type = ?",
			sourceTable, sourcePK, string(kind)).
		Order("created_at ASC").
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link.CandidateEntityID, nil
}

// FirstLinkedCandidateID returns the oldest candidate linked to the
// given canonical entity, or nil when no link exists.
func (s *ResolutionStore) FirstLinkedCandidateID(
	ctx context.Context,
	kind resolution.Kind,
	canonicalID uuid.UUID,
) (*uuid.UUID, error) {
	var link models.CandidateCanonicalLink
	err := s.db.WithContext(ctx).
		Where("candidate_entity_type = ? AND canonical_entity_id = ?", string(kind), canonicalID).
		Order("created_at ASC").
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link.CandidateEntityID, nil
}

// UpsertContact records a contact observation for a candidate
// participant, deduplicated on the normalized value when present,
// otherwise on the raw value.
func (s *ResolutionStore) UpsertContact(
	ctx context.Context,
	candidateParticipantID uuid.UUID,
	contactType, rawValue string,
	normalizedValue *string,
	isPrimary bool,
	sourceTable, sourcePK string,
) error {
	q := s.db.WithContext(ctx).Model(&models.CandidateParticipantContact{}).
		Where("candidate_participant_id = ? AND contact_type = ?", candidateParticipantID, contactType)
	if normalizedValue != nil {
		q = q.Where("normalized_value = ?", *normalizedValue)
	} else {
		q = q.Where("normalized_value IS NULL AND raw_value = ?", rawValue)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&models.CandidateParticipantContact{
		CandidateParticipantID: candidateParticipantID,
		ContactType:            contactType,
		RawValue:               rawValue,
		NormalizedValue:        normalizedValue,
		IsPrimary:              isPrimary,
		SourceTableName:        sourceTable,
		SourceRowPK:            sourcePK,
	}).Error
}

// UpsertAddress records an address observation, deduplicated on the raw
// address string.
func (s *ResolutionStore) UpsertAddress(
	ctx context.Context,
	addr *models.CandidateParticipantAddress,
) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "candidate_participant_id"},
				{Name: "address_raw"},
			},
			DoNothing: true,
		}).
		Create(addr)
	return result.Error
}

// UpsertRole records a role assignment, skipping exact duplicates. Nil
// event and registration scopes are part of the dedup key.
func (s *ResolutionStore) UpsertRole(
	ctx context.Context,
	role *models.CandidateParticipantRole,
) error {
	q := s.db.WithContext(ctx).Model(&models.CandidateParticipantRole{}).
		Where("candidate_participant_id = ? AND role = ?", role.CandidateParticipantID, role.Role)
	if role.CandidateEventID != nil {
		q = q.Where("candidate_event_id = ?", *role.CandidateEventID)
	} else {
		q = q.Where("candidate_event_id IS NULL")
	}
	if role.CandidateRegistrationID != nil {
		q = q.Where("candidate_registration_id = ?", *role.CandidateRegistrationID)
	} else {
		q = q.Where("candidate_registration_id IS NULL")
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(role).Error
}

// ApplyScore persists a scoring result on a candidate. A promoted
// candidate keeps resolution_state auto_promote regardless of the newly
// routed state; score, reasons, and run id still refresh.
func (s *ResolutionStore) ApplyScore(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
	score decimal.Decimal,
	state resolution.State,
	reasonsJSON string,
	runID uuid.UUID,
) error {
	return s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("id = ?", candidateID).
		Updates(map[string]any{
			"quality_score": score,
			"resolution_state": gorm.Expr(
				"CASE WHEN is_promoted THEN ? ELSE ? END",
				string(resolution.StateAutoPromote), string(state)),
			"confidence_reasons": reasonsJSON,
			"last_score_run_id":  runID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// SetResolutionState overwrites the resolution state of a candidate.
func (s *ResolutionStore) SetResolutionState(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
	state resolution.State,
) error {
	return s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("id = ?", candidateID).
		Updates(map[string]any{
			"resolution_state": string(state),
			"updated_at":       time.Now().UTC(),
		}).Error
}

// MarkPromoted stamps a candidate as promoted to the given canonical id.
func (s *ResolutionStore) MarkPromoted(
	ctx context.Context,
	kind resolution.Kind,
	candidateID, canonicalID uuid.UUID,
) error {
	return s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("id = ?", candidateID).
		Updates(map[string]any{
			"is_promoted":           true,
			"promoted_canonical_id": canonicalID,
			"resolution_state":      string(resolution.StateAutoPromote),
			"updated_at":            time.Now().UTC(),
		}).Error
}

// ResetPromotion clears the promotion flags and returns the candidate
// to the review queue. Used by demote and unlink.
func (s *ResolutionStore) ResetPromotion(
	ctx context.Context,
	kind resolution.Kind,
	candidateID uuid.UUID,
) error {
	return s.db.WithContext(ctx).Table(kind.CandidateTable()).
		Where("id = ?", candidateID).
		Updates(map[string]any{
			"is_promoted":           false,
			"promoted_canonical_id": nil,
			"resolution_state":      string(resolution.StateReview),
			"updated_at":            time.Now().UTC(),
		}).Error
}
