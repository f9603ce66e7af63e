package resolution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/decisioncsv"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

var decisionSheetColumns = []string{
	"candidate_entity_type", "candidate_entity_id", "action", "actor",
}

// errRegMissingEvent marks a registration promote with no candidate
// event at all, which is an invalid row rather than an ordering problem.
var errRegMissingEvent = errors.New("registration has no candidate event")

// ManualApplier applies a reviewer decision sheet to the candidate
// tables. Each row promotes, rejects, or holds one candidate with full
// audit logging; a savepoint per row keeps one bad decision from
// discarding the rest of the sheet.
type ManualApplier struct {
	tx  *gorm.DB
	log *zap.Logger

	candidates *persistence.ResolutionStore
	canonicals *persistence.CanonicalStore
	actions    *persistence.ActionStore
}

func NewManualApplier(tx *gorm.DB, log *zap.Logger) *ManualApplier {
	return &ManualApplier{
		tx:         tx,
		log:        log,
		candidates: persistence.NewResolutionStore(tx),
		canonicals: persistence.NewCanonicalStore(tx),
		actions:    persistence.NewActionStore(tx),
	}
}

type decisionRow struct {
	index      int
	kind       resolution.Kind
	candidate  uuid.UUID
	action     resolution.DecisionAction
	actor      string
	reasonCode string
}

// readDecisionSheet parses and validates the CSV. Structurally broken
// files fail outright; individually bad rows become warnings and count
// as invalid.
func readDecisionSheet(path string, ctrs *ManualApplyCounters) ([]decisionRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decisions sheet: %w", err)
	}
	parser, err := decisioncsv.ParseFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse decisions sheet: %w", err)
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, fmt.Errorf("parse decisions sheet header: %w", err)
	}
	if missing := parser.ValidateHeaders(decisionSheetColumns); len(missing) > 0 {
		return nil, fmt.Errorf("decisions sheet missing required columns: %v", missing)
	}

	rows, err := parser.ReadAllRows()
	if err != nil {
		return nil, fmt.Errorf("read decisions sheet rows: %w", err)
	}

	var out []decisionRow
	for i, row := range rows {
		ctrs.RowsRead++
		kindRaw := strings.ToLower(row.Get("candidate_entity_type"))
		pkRaw := row.Get("candidate_entity_id")
		actionRaw := strings.ToLower(row.Get("action"))
		actor := row.Get("actor")
		if kindRaw == "" || pkRaw == "" || actionRaw == "" || actor == "" {
			ctrs.RowsInvalid++
			ctrs.Warnf("row %d: missing required field(s) (entity_type=%q, pk=%q, action=%q, actor=%q)",
				i, kindRaw, pkRaw, actionRaw, actor)
			continue
		}
		kind, err := resolution.ParseKind(kindRaw)
		if err != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("row %d: unknown candidate_entity_type=%q", i, kindRaw)
			continue
		}
		action, err := resolution.ParseDecisionAction(actionRaw)
		if err != nil || !isReviewAction(action) {
			ctrs.RowsInvalid++
			ctrs.Warnf("row %d: unknown action=%q", i, actionRaw)
			continue
		}
		pk, err := uuid.Parse(pkRaw)
		if err != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("row %d: candidate_entity_id=%q is not a UUID", i, pkRaw)
			continue
		}
		out = append(out, decisionRow{
			index:      i,
			kind:       kind,
			candidate:  pk,
			action:     action,
			actor:      actor,
			reasonCode: row.GetOrDefault("reason_code", "manual_review"),
		})
	}
	return out, nil
}

func isReviewAction(a resolution.DecisionAction) bool {
	switch a {
	case resolution.ActionPromote, resolution.ActionReject, resolution.ActionHold:
		return true
	}
	return false
}

// Run applies the sheet at path. validateOnly parses and validates
// without touching the database. The returned kinds are the entity
// types that had at least one successful promote, for re-scoring by the
// caller.
func (m *ManualApplier) Run(
	ctx context.Context,
	path string,
	validateOnly bool,
) (*ManualApplyCounters, []resolution.Kind, error) {
	ctrs := &ManualApplyCounters{}
	rows, err := readDecisionSheet(path, ctrs)
	if err != nil {
		return ctrs, nil, err
	}
	if validateOnly {
		return ctrs, nil, nil
	}

	_, log := logger.WithStage(ctx, m.log, "manual_apply")
	promoted := map[resolution.Kind]bool{}
	for _, row := range rows {
		appliedBefore := ctrs.RowsApplied
		err := m.tx.Transaction(func(sp *gorm.DB) error {
			return m.applyRow(ctx, sp, row, ctrs)
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("row %d: %v", row.index, err)
			continue
		}
		if row.action == resolution.ActionPromote && ctrs.RowsApplied > appliedBefore {
			promoted[row.kind] = true
		}
	}
	log.Info("decision sheet applied",
		zap.Int("rows_read", ctrs.RowsRead),
		zap.Int("rows_applied", ctrs.RowsApplied),
		zap.Int("rows_invalid", ctrs.RowsInvalid))

	var affected []resolution.Kind
	for _, kind := range resolution.AllKinds {
		if promoted[kind] {
			affected = append(affected, kind)
		}
	}
	return ctrs, affected, nil
}

func (m *ManualApplier) applyRow(
	ctx context.Context,
	sp *gorm.DB,
	row decisionRow,
	ctrs *ManualApplyCounters,
) error {
	if row.action == resolution.ActionPromote {
		return m.applyPromote(ctx, sp, row, ctrs)
	}
	return m.applyStateChange(ctx, sp, row, ctrs)
}

type candidateGuard struct {
	IsPromoted      bool
	QualityScore    any
	ResolutionState string
}

func fetchCandidateGuard(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	pk uuid.UUID,
) (*candidateGuard, error) {
	row := map[string]any{}
	err := sp.WithContext(ctx).Table(kind.CandidateTable()).
		Select("is_promoted", "quality_score", "resolution_state").
		Where("id = ?", pk).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	promotedVal, _ := row["is_promoted"].(bool)
	if n, ok := row["is_promoted"].(int64); ok {
		promotedVal = n != 0
	}
	state, _ := row["resolution_state"].(string)
	return &candidateGuard{
		IsPromoted:      promotedVal,
		QualityScore:    row["quality_score"],
		ResolutionState: state,
	}, nil
}

func (m *ManualApplier) applyPromote(
	ctx context.Context,
	sp *gorm.DB,
	row decisionRow,
	ctrs *ManualApplyCounters,
) error {
	candidates := m.candidates.WithTx(sp)
	canonicals := m.canonicals.WithTx(sp)
	actions := m.actions.WithTx(sp)

	guard, err := fetchCandidateGuard(ctx, sp, row.kind, row.candidate)
	if err != nil {
		return err
	}
	if guard == nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("promote %s %s: candidate not found", row.kind, row.candidate)
		return nil
	}
	if guard.IsPromoted {
		ctrs.RowsSkippedAlreadyPromoted++
		ctrs.Warnf("promote %s %s: already promoted, skipped", row.kind, row.candidate)
		return nil
	}
	if guard.ResolutionState != string(resolution.StateReview) && guard.ResolutionState != string(resolution.StateHold) {
		ctrs.RowsInvalid++
		ctrs.Warnf("promote %s %s: resolution_state=%q is not review/hold; blocked",
			row.kind, row.candidate, guard.ResolutionState)
		return nil
	}
	score := parseScoreValue(guard.QualityScore)

	var canonicalID *uuid.UUID
	link, err := canonicals.GetLink(ctx, row.kind, row.candidate)
	if err != nil {
		return err
	}
	if link != nil {
		existing, err := canonicals.GetCanonical(ctx, row.kind, link.CanonicalEntityID)
		if err != nil {
			return err
		}
		if existing != nil {
			id := link.CanonicalEntityID
			canonicalID = &id
		} else {
			ctrs.Warnf("promote %s %s: stale canonical link %s, deleting and re-promoting",
				row.kind, row.candidate, link.CanonicalEntityID)
			if err := canonicals.DeleteLink(ctx, row.kind, row.candidate); err != nil {
				return err
			}
		}
	}

	if canonicalID == nil {
		id, err := m.insertCanonical(ctx, sp, canonicals, row.kind, row.candidate)
		if errors.Is(err, errRegMissingEvent) {
			ctrs.RowsInvalid++
			ctrs.Warnf("promote registration %s: missing candidate_event_id", row.candidate)
			return nil
		}
		if errors.Is(err, errMissingDep) {
			ctrs.RowsSkippedMissingDep++
			ctrs.Warnf("promote registration %s: event not yet promoted", row.candidate)
			return nil
		}
		if err != nil {
			return err
		}
		canonicalID = &id
	}

	err = canonicals.UpsertLink(ctx, &models.CandidateCanonicalLink{
		CandidateEntityType: string(row.kind),
		CandidateEntityID:   row.candidate,
		CanonicalEntityID:   *canonicalID,
		PromotionScore:      score,
		PromotionMode:       "manual",
		PromotedBy:          row.actor,
		PromotedAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := candidates.MarkPromoted(ctx, row.kind, row.candidate, *canonicalID); err != nil {
		return err
	}
	candidateID := row.candidate
	reason := row.reasonCode
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(row.kind),
		CandidateEntityID: &candidateID,
		CanonicalEntityID: canonicalID,
		Action:            "promote",
		Reason:            &reason,
		Actor:             row.actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	err = canonicals.WriteProvenance(ctx, row.kind, *canonicalID, row.kind.ProvenanceAttrs(), &candidateID, nil, "manual")
	if err != nil {
		return err
	}
	ctrs.RowsApplied++
	return nil
}

// insertCanonical builds a fresh canonical row from the candidate. For
// registrations the canonical event reference must resolve; yacht and
// participant references stay null when unavailable.
func (m *ManualApplier) insertCanonical(
	ctx context.Context,
	sp *gorm.DB,
	canonicals *persistence.CanonicalStore,
	kind resolution.Kind,
	pk uuid.UUID,
) (uuid.UUID, error) {
	row := map[string]any{}
	err := sp.WithContext(ctx).Table(kind.CandidateTable()).
		Where("id = ?", pk).
		Take(&row).Error
	if err != nil {
		return uuid.Nil, err
	}

	fields := map[string]any{"canonical_confidence_score": row["quality_score"]}
	for _, col := range kind.PromoteColumns() {
		fields[col] = row[col]
	}
	if kind == resolution.KindRegistration {
		candEventID := parseRefID(row["candidate_event_id"])
		if candEventID == nil {
			return uuid.Nil, errRegMissingEvent
		}
		eventLink, err := canonicals.GetLink(ctx, resolution.KindEvent, *candEventID)
		if err != nil {
			return uuid.Nil, err
		}
		if eventLink == nil {
			return uuid.Nil, errMissingDep
		}
		fields["canonical_event_id"] = eventLink.CanonicalEntityID
		if candYachtID := parseRefID(row["candidate_yacht_id"]); candYachtID != nil {
			if link, err := canonicals.GetLink(ctx, resolution.KindYacht, *candYachtID); err != nil {
				return uuid.Nil, err
			} else if link != nil {
				fields["canonical_yacht_id"] = link.CanonicalEntityID
			}
		}
		if candPartID := parseRefID(row["candidate_primary_participant_id"]); candPartID != nil {
			if link, err := canonicals.GetLink(ctx, resolution.KindParticipant, *candPartID); err != nil {
				return uuid.Nil, err
			} else if link != nil {
				fields["canonical_primary_participant_id"] = link.CanonicalEntityID
			}
		}
	}
	return canonicals.CreateCanonical(ctx, kind, fields)
}

func (m *ManualApplier) applyStateChange(
	ctx context.Context,
	sp *gorm.DB,
	row decisionRow,
	ctrs *ManualApplyCounters,
) error {
	candidates := m.candidates.WithTx(sp)
	actions := m.actions.WithTx(sp)

	guard, err := fetchCandidateGuard(ctx, sp, row.kind, row.candidate)
	if err != nil {
		return err
	}
	if guard == nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s %s %s: candidate not found", row.action, row.kind, row.candidate)
		return nil
	}
	if guard.IsPromoted {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s %s %s: is_promoted=true; cannot change state of promoted candidate",
			row.action, row.kind, row.candidate)
		return nil
	}

	newState := resolution.StateReject
	if row.action == resolution.ActionHold {
		newState = resolution.StateHold
	}
	if err := candidates.SetResolutionState(ctx, row.kind, row.candidate, newState); err != nil {
		return err
	}
	candidateID := row.candidate
	reason := row.reasonCode
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(row.kind),
		CandidateEntityID: &candidateID,
		Action:            string(row.action),
		Reason:            &reason,
		Actor:             row.actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	ctrs.RowsApplied++
	return nil
}
