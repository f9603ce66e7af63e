package resolution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/decisioncsv"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

var lifecycleSheetColumns = map[resolution.DecisionAction][]string{
	resolution.ActionMerge:  {"canonical_entity_type", "keep_canonical_id", "merge_canonical_id", "reason_code", "actor"},
	resolution.ActionDemote: {"candidate_entity_type", "candidate_entity_id", "reason_code", "actor"},
	resolution.ActionUnlink: {"candidate_entity_type", "candidate_entity_id", "reason_code", "actor"},
	resolution.ActionSplit:  {"canonical_entity_type", "old_canonical_id", "candidate_entity_id", "reason_code", "actor"},
}

// Lifecycler applies canonical lifecycle corrections from a decision
// sheet: merge two canonicals, demote or unlink a promoted candidate,
// or split a subset of candidates onto a cloned canonical.
type Lifecycler struct {
	tx  *gorm.DB
	log *zap.Logger

	candidates *persistence.ResolutionStore
	canonicals *persistence.CanonicalStore
	actions    *persistence.ActionStore
}

func NewLifecycler(tx *gorm.DB, log *zap.Logger) *Lifecycler {
	return &Lifecycler{
		tx:         tx,
		log:        log,
		candidates: persistence.NewResolutionStore(tx),
		canonicals: persistence.NewCanonicalStore(tx),
		actions:    persistence.NewActionStore(tx),
	}
}

// Run applies the given lifecycle operation from the sheet at path.
func (l *Lifecycler) Run(
	ctx context.Context,
	op resolution.DecisionAction,
	path string,
) (*LifecycleCounters, error) {
	columns, ok := lifecycleSheetColumns[op]
	if !ok {
		return nil, fmt.Errorf("unsupported lifecycle op %q", op)
	}
	ctrs := &LifecycleCounters{}

	data, err := os.ReadFile(path)
	if err != nil {
		return ctrs, fmt.Errorf("read lifecycle sheet: %w", err)
	}
	parser, err := decisioncsv.ParseFromBytes(data)
	if err != nil {
		return ctrs, fmt.Errorf("parse lifecycle sheet: %w", err)
	}
	if err := parser.ParseHeader(); err != nil {
		return ctrs, fmt.Errorf("parse lifecycle sheet header: %w", err)
	}
	if missing := parser.ValidateHeaders(columns); len(missing) > 0 {
		return ctrs, fmt.Errorf("lifecycle sheet (%s) missing required columns: %v", op, missing)
	}
	rows, err := parser.ReadAllRows()
	if err != nil {
		return ctrs, fmt.Errorf("read lifecycle sheet rows: %w", err)
	}

	runCtx, log := logger.WithStage(ctx, l.log, "lifecycle/"+string(op))
	if op == resolution.ActionSplit {
		l.runSplit(runCtx, rows, ctrs)
	} else {
		for i, row := range rows {
			ctrs.RowsRead++
			err := l.tx.Transaction(func(sp *gorm.DB) error {
				return l.dispatchRow(runCtx, sp, op, i, row, ctrs)
			})
			if err != nil {
				ctrs.DBErrors++
				ctrs.Warnf("%s row %d: %v", op, i, err)
			}
		}
	}
	log.Info("lifecycle sheet applied",
		zap.Int("rows_read", ctrs.RowsRead),
		zap.Int("rows_applied", ctrs.RowsApplied),
		zap.Int("rows_invalid", ctrs.RowsInvalid))
	return ctrs, nil
}

func (l *Lifecycler) dispatchRow(
	ctx context.Context,
	sp *gorm.DB,
	op resolution.DecisionAction,
	idx int,
	row *decisioncsv.Row,
	ctrs *LifecycleCounters,
) error {
	if op == resolution.ActionMerge {
		kindRaw := strings.ToLower(row.Get("canonical_entity_type"))
		keepRaw := row.Get("keep_canonical_id")
		mergeRaw := row.Get("merge_canonical_id")
		reason := row.Get("reason_code")
		actor := row.Get("actor")
		if kindRaw == "" || keepRaw == "" || mergeRaw == "" || actor == "" {
			ctrs.RowsInvalid++
			ctrs.Warnf("merge row %d: missing required field(s)", idx)
			return nil
		}
		kind, err := resolution.ParseKind(kindRaw)
		if err != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("merge row %d: unknown entity_type=%q", idx, kindRaw)
			return nil
		}
		keepID, err1 := uuid.Parse(keepRaw)
		mergeID, err2 := uuid.Parse(mergeRaw)
		if err1 != nil || err2 != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("merge row %d: canonical id is not a UUID", idx)
			return nil
		}
		return l.applyMerge(ctx, sp, kind, keepID, mergeID, reason, actor, ctrs)
	}

	kindRaw := strings.ToLower(row.Get("candidate_entity_type"))
	candRaw := row.Get("candidate_entity_id")
	reason := row.Get("reason_code")
	actor := row.Get("actor")
	if kindRaw == "" || candRaw == "" || actor == "" {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s row %d: missing required field(s)", op, idx)
		return nil
	}
	kind, err := resolution.ParseKind(kindRaw)
	if err != nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s row %d: unknown entity_type=%q", op, idx, kindRaw)
		return nil
	}
	candID, err := uuid.Parse(candRaw)
	if err != nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s row %d: candidate_entity_id=%q is not a UUID", op, idx, candRaw)
		return nil
	}
	if op == resolution.ActionDemote {
		return l.applyDemote(ctx, sp, kind, candID, reason, actor, ctrs)
	}
	return l.applyUnlink(ctx, sp, kind, candID, reason, actor, ctrs)
}

// applyMerge folds one canonical into another: candidates relink to the
// kept canonical, its null attributes fill from the merged one, and the
// merged canonical disappears.
func (l *Lifecycler) applyMerge(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	keepID, mergeID uuid.UUID,
	reason, actor string,
	ctrs *LifecycleCounters,
) error {
	canonicals := l.canonicals.WithTx(sp)
	actions := l.actions.WithTx(sp)

	keep, err := canonicals.GetCanonical(ctx, kind, keepID)
	if err != nil {
		return err
	}
	if keep == nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("merge %s: keep_canonical_id %s not found", kind, keepID)
		return nil
	}
	merge, err := canonicals.GetCanonical(ctx, kind, mergeID)
	if err != nil {
		return err
	}
	if merge == nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("merge %s: merge_canonical_id %s not found", kind, mergeID)
		return nil
	}
	if keepID == mergeID {
		ctrs.RowsInvalid++
		ctrs.Warnf("merge %s: keep_id == merge_id (%s)", kind, keepID)
		return nil
	}

	linked, err := canonicals.ListLinkedCandidateIDs(ctx, kind, mergeID)
	if err != nil {
		return err
	}
	// An orphan canonical cannot be merged: the audit log needs at least
	// one candidate and the orphan points at a deeper inconsistency.
	if len(linked) == 0 {
		ctrs.RowsInvalid++
		ctrs.Warnf("merge %s: merge_canonical_id %s has no linked candidates; merge rejected", kind, mergeID)
		return nil
	}
	provenanceCandidate := linked[0]

	if err := canonicals.RelinkCanonical(ctx, kind, mergeID, keepID); err != nil {
		return err
	}

	mergeValues := map[string]any{}
	for _, attr := range kind.ProvenanceAttrs() {
		mergeValues[attr] = merge[attr]
	}
	filled, err := canonicals.FillCanonicalNulls(ctx, kind, keepID, mergeValues)
	if err != nil {
		return err
	}
	if len(filled) > 0 {
		err = canonicals.WriteProvenance(ctx, kind, keepID, filled, &provenanceCandidate, nil, "merge")
		if err != nil {
			return err
		}
	}

	if err := canonicals.RerouteRegistrationRefs(ctx, kind, mergeID, keepID); err != nil {
		return err
	}
	if err := canonicals.DeleteCanonical(ctx, kind, mergeID); err != nil {
		return err
	}
	for _, cid := range linked {
		if err := actions.DismissOpenNBAs(ctx, kind, cid); err != nil {
			return err
		}
	}
	keepRef := keepID
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(kind),
		CandidateEntityID: &provenanceCandidate,
		CanonicalEntityID: &keepRef,
		Action:            "merge",
		Reason:            &reason,
		Actor:             actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	ctrs.RowsApplied++
	return nil
}

// promotedCandidate loads the promotion fields needed by demote and
// unlink, reporting invalid rows through the counters.
func (l *Lifecycler) promotedCandidate(
	ctx context.Context,
	sp *gorm.DB,
	op resolution.DecisionAction,
	kind resolution.Kind,
	candID uuid.UUID,
	ctrs *LifecycleCounters,
) (*uuid.UUID, bool, error) {
	row := map[string]any{}
	err := sp.WithContext(ctx).Table(kind.CandidateTable()).
		Select("is_promoted", "promoted_canonical_id").
		Where("id = ?", candID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s %s %s: candidate not found", op, kind, candID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	promoted, _ := row["is_promoted"].(bool)
	if n, ok := row["is_promoted"].(int64); ok {
		promoted = n != 0
	}
	if !promoted {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s %s %s: not promoted, skipped", op, kind, candID)
		return nil, false, nil
	}
	canonicalID := parseRefID(row["promoted_canonical_id"])
	if canonicalID == nil {
		ctrs.RowsInvalid++
		ctrs.Warnf("%s %s %s: is_promoted=true but promoted_canonical_id is null", op, kind, candID)
		return nil, false, nil
	}
	return canonicalID, true, nil
}

// applyDemote reverts a promotion. When the candidate was the sole link
// the orphaned canonical is deleted with its registration references
// cleared.
func (l *Lifecycler) applyDemote(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	candID uuid.UUID,
	reason, actor string,
	ctrs *LifecycleCounters,
) error {
	candidates := l.candidates.WithTx(sp)
	canonicals := l.canonicals.WithTx(sp)
	actions := l.actions.WithTx(sp)

	canonicalID, ok, err := l.promotedCandidate(ctx, sp, resolution.ActionDemote, kind, candID, ctrs)
	if err != nil || !ok {
		return err
	}

	linkCount, err := canonicals.LinkCount(ctx, kind, *canonicalID)
	if err != nil {
		return err
	}
	if err := canonicals.DeleteLink(ctx, kind, candID); err != nil {
		return err
	}
	if err := candidates.ResetPromotion(ctx, kind, candID); err != nil {
		return err
	}
	canonicalDeleted := linkCount == 1
	if canonicalDeleted {
		if err := canonicals.ClearRegistrationRefs(ctx, kind, *canonicalID); err != nil {
			return err
		}
		if err := canonicals.DeleteCanonical(ctx, kind, *canonicalID); err != nil {
			return err
		}
	}
	if err := actions.DismissOpenNBAs(ctx, kind, candID); err != nil {
		return err
	}
	candidateRef := candID
	var loggedCanonical *uuid.UUID
	if !canonicalDeleted {
		loggedCanonical = canonicalID
	}
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(kind),
		CandidateEntityID: &candidateRef,
		CanonicalEntityID: loggedCanonical,
		Action:            "demote",
		Reason:            &reason,
		Actor:             actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	ctrs.RowsApplied++
	return nil
}

// applyUnlink detaches a candidate from its canonical without ever
// deleting the canonical. Open recommendations stay open: the candidate
// returns to review and may still need enrichment.
func (l *Lifecycler) applyUnlink(
	ctx context.Context,
	sp *gorm.DB,
	kind resolution.Kind,
	candID uuid.UUID,
	reason, actor string,
	ctrs *LifecycleCounters,
) error {
	candidates := l.candidates.WithTx(sp)
	canonicals := l.canonicals.WithTx(sp)
	actions := l.actions.WithTx(sp)

	canonicalID, ok, err := l.promotedCandidate(ctx, sp, resolution.ActionUnlink, kind, candID, ctrs)
	if err != nil || !ok {
		return err
	}
	if err := canonicals.DeleteLink(ctx, kind, candID); err != nil {
		return err
	}
	if err := candidates.ResetPromotion(ctx, kind, candID); err != nil {
		return err
	}
	candidateRef := candID
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(kind),
		CandidateEntityID: &candidateRef,
		CanonicalEntityID: canonicalID,
		Action:            "unlink",
		Reason:            &reason,
		Actor:             actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	ctrs.RowsApplied++
	return nil
}

type splitGroup struct {
	kind       resolution.Kind
	oldID      uuid.UUID
	candidates []uuid.UUID
	reason     string
	actor      string
}

// runSplit batches rows by (entity type, old canonical) and applies
// each group in its own savepoint.
func (l *Lifecycler) runSplit(ctx context.Context, rows []*decisioncsv.Row, ctrs *LifecycleCounters) {
	var order []string
	groups := map[string]*splitGroup{}

	for _, row := range rows {
		ctrs.RowsRead++
		kindRaw := strings.ToLower(row.Get("canonical_entity_type"))
		oldRaw := row.Get("old_canonical_id")
		candRaw := row.Get("candidate_entity_id")
		reason := row.Get("reason_code")
		actor := row.Get("actor")
		if kindRaw == "" || oldRaw == "" || candRaw == "" || actor == "" {
			ctrs.RowsInvalid++
			ctrs.Warnf("split row: missing required field(s)")
			continue
		}
		kind, err := resolution.ParseKind(kindRaw)
		if err != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("split row: unknown entity_type=%q", kindRaw)
			continue
		}
		oldID, err1 := uuid.Parse(oldRaw)
		candID, err2 := uuid.Parse(candRaw)
		if err1 != nil || err2 != nil {
			ctrs.RowsInvalid++
			ctrs.Warnf("split row: id is not a UUID")
			continue
		}
		key := string(kind) + "/" + oldID.String()
		grp, ok := groups[key]
		if !ok {
			grp = &splitGroup{kind: kind, oldID: oldID, reason: reason, actor: actor}
			groups[key] = grp
			order = append(order, key)
		}
		grp.candidates = append(grp.candidates, candID)
	}

	for _, key := range order {
		grp := groups[key]
		err := l.tx.Transaction(func(sp *gorm.DB) error {
			return l.applySplit(ctx, sp, grp, ctrs)
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("split %s %s: %v", grp.kind, grp.oldID, err)
		}
	}
}

func (l *Lifecycler) applySplit(
	ctx context.Context,
	sp *gorm.DB,
	grp *splitGroup,
	ctrs *LifecycleCounters,
) error {
	candidates := l.candidates.WithTx(sp)
	canonicals := l.canonicals.WithTx(sp)
	actions := l.actions.WithTx(sp)

	old, err := canonicals.GetCanonical(ctx, grp.kind, grp.oldID)
	if err != nil {
		return err
	}
	if old == nil {
		for _, cid := range grp.candidates {
			ctrs.RowsInvalid++
			ctrs.Warnf("split %s: old_canonical_id %s not found (candidate %s)", grp.kind, grp.oldID, cid)
		}
		return nil
	}

	var valid []uuid.UUID
	for _, cid := range grp.candidates {
		link, err := canonicals.GetLink(ctx, grp.kind, cid)
		if err != nil {
			return err
		}
		if link == nil || link.CanonicalEntityID != grp.oldID {
			ctrs.RowsInvalid++
			ctrs.Warnf("split %s candidate %s: not linked to %s", grp.kind, cid, grp.oldID)
			continue
		}
		valid = append(valid, cid)
	}
	if len(valid) == 0 {
		return nil
	}

	newID, err := canonicals.CloneCanonical(ctx, grp.kind, grp.oldID)
	if err != nil {
		return err
	}
	relink := map[string]any{"canonical_entity_id": newID}
	for _, cid := range valid {
		err := sp.WithContext(ctx).Model(&models.CandidateCanonicalLink{}).
			Where("candidate_entity_type = ? AND candidate_entity_id = ?", string(grp.kind), cid).
			Updates(relink).Error
		if err != nil {
			return err
		}
		if err := candidates.MarkPromoted(ctx, grp.kind, cid, newID); err != nil {
			return err
		}
	}
	first := valid[0]
	err = canonicals.WriteProvenance(ctx, grp.kind, newID, grp.kind.ProvenanceAttrs(), &first, nil, "merge")
	if err != nil {
		return err
	}
	oldRef := grp.oldID
	err = actions.LogAction(ctx, &models.ResolutionManualActionLog{
		EntityType:        string(grp.kind),
		CandidateEntityID: &first,
		CanonicalEntityID: &oldRef,
		Action:            "split",
		Reason:            &grp.reason,
		Actor:             grp.actor,
		DecisionSource:    "sheet_import",
	})
	if err != nil {
		return err
	}
	ctrs.RowsApplied += len(valid)
	return nil
}
