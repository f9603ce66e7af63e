package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// Promoter runs the promote stage: every candidate sitting in
// auto_promote that is not yet promoted gets a canonical row, a
// canonical link, attribute provenance, and an audit entry.
//
// Kinds are always processed in dependency order so registrations can
// resolve canonical foreign keys from entities promoted earlier in the
// same run. Each candidate is wrapped in a savepoint; a failure rolls
// back only that candidate. A pre-existing canonical link (left by a
// partial prior run) is reused instead of inserting a duplicate
// canonical row.
type Promoter struct {
	tx  *gorm.DB
	log *zap.Logger

	candidates *persistence.ResolutionStore
	canonicals *persistence.CanonicalStore
	actions    *persistence.ActionStore
}

func NewPromoter(tx *gorm.DB, log *zap.Logger) *Promoter {
	return &Promoter{
		tx:         tx,
		log:        log,
		candidates: persistence.NewResolutionStore(tx),
		canonicals: persistence.NewCanonicalStore(tx),
		actions:    persistence.NewActionStore(tx),
	}
}

// parseScoreValue converts a scanned quality_score column into a
// decimal. Drivers hand it back as decimal, float, string, or bytes
// depending on the dialect.
func parseScoreValue(v any) *decimal.Decimal {
	if v == nil {
		return nil
	}
	switch s := v.(type) {
	case decimal.Decimal:
		return &s
	case float64:
		d := decimal.NewFromFloat(s)
		return &d
	case string:
		if d, err := decimal.NewFromString(s); err == nil {
			return &d
		}
	case []byte:
		if d, err := decimal.NewFromString(string(s)); err == nil {
			return &d
		}
	}
	return nil
}

func parseRefID(v any) *uuid.UUID {
	if v == nil {
		return nil
	}
	switch s := v.(type) {
	case uuid.UUID:
		return &s
	case [16]byte:
		id := uuid.UUID(s)
		return &id
	case []byte:
		if id, err := uuid.ParseBytes(s); err == nil {
			return &id
		}
	case string:
		if id, err := uuid.Parse(s); err == nil {
			return &id
		}
	}
	return nil
}

// Run promotes all eligible candidates of the requested kinds.
func (p *Promoter) Run(ctx context.Context, kinds []resolution.Kind) (*PromoteCounters, error) {
	ctrs := &PromoteCounters{}
	requested := make(map[resolution.Kind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}
	for _, kind := range resolution.AllKinds {
		if !requested[kind] {
			continue
		}
		runCtx, log := logger.WithStage(ctx, p.log, "promote/"+string(kind))
		if err := p.promoteKind(runCtx, kind, ctrs); err != nil {
			return ctrs, fmt.Errorf("promote %s: %w", kind, err)
		}
		log.Info("promotion pass finished",
			zap.Int("candidates_promoted", ctrs.CandidatesPromoted),
			zap.Int("skipped_missing_dep", ctrs.CandidatesSkippedMissingDep))
	}
	return ctrs, nil
}

func (p *Promoter) promoteKind(ctx context.Context, kind resolution.Kind, ctrs *PromoteCounters) error {
	var alreadyPromoted int64
	err := p.tx.WithContext(ctx).Table(kind.CandidateTable()).
		Where("resolution_state = ? AND is_promoted = ?", string(resolution.StateAutoPromote), true).
		Count(&alreadyPromoted).Error
	if err != nil {
		return err
	}
	ctrs.CandidatesAlreadyPromoted += int(alreadyPromoted)

	var rows []map[string]any
	err = p.tx.WithContext(ctx).Table(kind.CandidateTable()).
		Where("resolution_state = ? AND is_promoted = ?", string(resolution.StateAutoPromote), false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		pk := parseRefID(row["id"])
		if pk == nil {
			ctrs.DBErrors++
			ctrs.Warnf("%s: candidate row with unreadable id", kind)
			continue
		}
		err := p.tx.Transaction(func(sp *gorm.DB) error {
			return p.promoteCandidate(ctx, sp, kind, *pk, row, ctrs)
		})
		if err != nil {
			if errors.Is(err, errMissingDep) {
				ctrs.CandidatesSkippedMissingDep++
				continue
			}
			ctrs.DBErrors++
			ctrs.Warnf("%s pk=%s: %v", kind, pk, err)
		}
	}
	return nil
}

// errMissingDep aborts a registration savepoint without counting it as
// a database error.
var errMissingDep = errors.New("required dependency not promoted")

func (p *Promoter) promoteCandidate(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	pk uuid.UUID,
	row map[string]any,
	ctrs *PromoteCounters,
) error {
	candidates := p.candidates.WithTx(sp)
	canonicals := p.canonicals.WithTx(sp)
	actions := p.actions.WithTx(sp)

	score := parseScoreValue(row["quality_score"])

	var canonicalID uuid.UUID
	existing, err := canonicals.GetLink(ctx, kind, pk)
	if err != nil {
		return err
	}
	if existing != nil {
		canonicalID = existing.CanonicalEntityID
	} else {
		fields := map[string]any{"canonical_confidence_score": row["quality_score"]}
		for _, col := range kind.PromoteColumns() {
			fields[col] = row[col]
		}
		if kind == resolution.KindRegistration {
			refs, err := p.resolveRegistrationRefs(ctx, canonicals, pk, row, ctrs)
			if err != nil {
				return err
			}
			for col, val := range refs {
				fields[col] = val
			}
		}
		canonicalID, err = canonicals.CreateCanonical(ctx, kind, fields)
		if err != nil {
			return err
		}
	}

	_, err = canonicals.CreateLinkIfAbsent(ctx, &models.CandidateCanonicalLink{
		CandidateEntityType: string(kind),
		CandidateEntityID:   pk,
		CanonicalEntityID:   canonicalID,
		PromotionScore:      score,
		PromotionMode:       "auto",
		PromotedBy:          "pipeline",
		PromotedAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := candidates.MarkPromoted(ctx, kind, pk, canonicalID); err != nil {
		return err
	}
	candidateID := pk
	canonicalRef := canonicalID
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(kind),
		CandidateEntityID: &candidateID,
		CanonicalEntityID: &canonicalRef,
		Action:            "promote",
		Actor:             "pipeline",
		DecisionSource:    "pipeline",
	})
	if err != nil {
		return err
	}
	err = canonicals.WriteProvenance(ctx, kind, canonicalID, kind.ProvenanceAttrs(), &candidateID, nil, "auto_promote")
	if err != nil {
		return err
	}
	ctrs.CandidatesPromoted++
	return nil
}

// resolveRegistrationRefs maps a registration's candidate foreign keys
// onto canonical ids. The event is mandatory; yacht and participant
// stay null when their candidates are not promoted yet.
func (p *Promoter) resolveRegistrationRefs(
	ctx context.Context,
	canonicals *persistence.CanonicalStore,
	pk uuid.UUID,
	row map[string]any,
	ctrs *PromoteCounters,
) (map[string]any, error) {
	candEventID := parseRefID(row["candidate_event_id"])
	if candEventID == nil {
		return nil, errMissingDep
	}
	eventLink, err := canonicals.GetLink(ctx, resolution.KindEvent, *candEventID)
	if err != nil {
		return nil, err
	}
	if eventLink == nil {
		ctrs.Warnf("registration %s: event %s not yet promoted", pk, candEventID)
		return nil, errMissingDep
	}

	refs := map[string]any{"canonical_event_id": eventLink.CanonicalEntityID}
	if candYachtID := parseRefID(row["candidate_yacht_id"]); candYachtID != nil {
		link, err := canonicals.GetLink(ctx, resolution.KindYacht, *candYachtID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			refs["canonical_yacht_id"] = link.CanonicalEntityID
		}
	}
	if candPartID := parseRefID(row["candidate_primary_participant_id"]); candPartID != nil {
		link, err := canonicals.GetLink(ctx, resolution.KindParticipant, *candPartID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			refs["canonical_primary_participant_id"] = link.CanonicalEntityID
		}
	}
	return refs, nil
}
