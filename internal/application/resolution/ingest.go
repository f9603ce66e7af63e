package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/domain/normalize"
	"github.com/regatta/etl/internal/domain/resolution"
	"github.com/regatta/etl/internal/infrastructure/logger"
	"github.com/regatta/etl/internal/infrastructure/persistence"
	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// Ingestor runs the source-to-candidate stage: it reads the operational
// and raw-capture tables, collapses observations into fingerprint-keyed
// candidate rows, and records source links and participant children.
type Ingestor struct {
	tx    *gorm.DB
	log   *zap.Logger
	store *persistence.ResolutionStore
}

// NewIngestor creates an Ingestor bound to an open transaction.
func NewIngestor(tx *gorm.DB, log *zap.Logger) *Ingestor {
	return &Ingestor{tx: tx, log: log, store: persistence.NewResolutionStore(tx)}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parsePayload(raw string) map[string]any {
	payload := map[string]any{}
	if raw == "" {
		return payload
	}
	_ = json.Unmarshal([]byte(raw), &payload)
	return payload
}

// payloadString returns the first non-empty trimmed string value among
// the given payload keys.
func payloadString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok {
				if trimmed := normalize.Trim(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

func sourceSystemOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}

// Run executes the ingestion steps for the requested kinds in
// dependency order. Each step runs under its own savepoint so a failed
// step degrades to a warning instead of poisoning the outer
// transaction; registrations always run last because they resolve
// event, yacht, and participant candidates through source links.
func (in *Ingestor) Run(ctx context.Context, kinds []resolution.Kind) (*IngestCounters, error) {
	ctrs := &IngestCounters{}
	want := map[resolution.Kind]bool{}
	for _, k := range kinds {
		want[k] = true
	}

	type step struct {
		name string
		kind resolution.Kind
		fn   func(context.Context, *gorm.DB, *IngestCounters) error
	}
	steps := []step{
		{"clubs/yacht_club", resolution.KindClub, in.ingestClubs},
		{"events/event_instance", resolution.KindEvent, in.ingestEvents},
		{"yachts/yacht", resolution.KindYacht, in.ingestYachts},
		{"participants/participant", resolution.KindParticipant, in.ingestParticipantsFromParticipant},
		{"participants/jotform", resolution.KindParticipant, in.ingestParticipantsFromJotform},
		{"participants/mailchimp", resolution.KindParticipant, in.ingestParticipantsFromMailchimp},
		{"participants/airtable", resolution.KindParticipant, in.ingestParticipantsFromAirtable},
		{"participants/yacht_scoring", resolution.KindParticipant, in.ingestParticipantsFromYachtScoring},
		{"participants/related_contacts", resolution.KindParticipant, in.ingestParticipantsFromRelatedContacts},
		{"registrations/event_entry", resolution.KindRegistration, in.ingestRegistrations},
	}

	for _, st := range steps {
		if !want[st.kind] {
			continue
		}
		stepCtx, log := logger.WithStage(ctx, in.log, st.name)
		log.Debug("ingestion step starting")
		err := in.tx.Transaction(func(sp *gorm.DB) error {
			return st.fn(stepCtx, sp, ctrs)
		})
		if err != nil {
			ctrs.Warnf("%s: step rolled back: %v", st.name, err)
			log.Warn("ingestion step rolled back", zap.Error(err))
		}
	}
	return ctrs, nil
}

func (in *Ingestor) ingestClubs(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var clubs []models.YachtClub
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&clubs).Error; err != nil {
		return err
	}
	for _, club := range clubs {
		fp := resolution.ClubFingerprint(club.NormalizedName)
		cid, created, err := store.UpsertCandidate(ctx, resolution.KindClub, fp, map[string]any{
			"name":            strPtr(club.Name),
			"normalized_name": strPtr(club.NormalizedName),
			"website":         club.WebsiteURL,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("clubs/yacht_club pk=%s: %v", club.ID, err)
			continue
		}
		if created {
			ctrs.Clubs.CandidatesCreated++
		} else {
			ctrs.Clubs.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindClub, cid, "yacht_club", club.ID, "operational_db", nil, ctrs)
		ctrs.Clubs.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestEvents(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	type eventRow struct {
		ID             uuid.UUID
		DisplayName    *string
		SeasonYear     *int
		StartDate      *time.Time
		EndDate        *time.Time
		SeriesNormName string
	}
	var rows []eventRow
	err := sp.WithContext(ctx).Raw(`
		SELECT ei.id, ei.display_name, ei.season_year, ei.start_date, ei.end_date,
		       es.normalized_name AS series_norm_name
		FROM event_instance ei
		JOIN event_series es ON es.id = ei.event_series_id
		ORDER BY ei.created_at`).Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		display := ""
		if row.DisplayName != nil {
			display = *row.DisplayName
		}
		normName := normalize.Name(display)
		fpName := normName
		if fpName == "" {
			fpName = row.SeriesNormName
		}
		fp := resolution.EventFingerprint(fpName, row.SeasonYear, "")
		cid, created, err := store.UpsertCandidate(ctx, resolution.KindEvent, fp, map[string]any{
			"event_name":            row.DisplayName,
			"normalized_event_name": strPtr(normName),
			"season_year":           row.SeasonYear,
			"start_date":            row.StartDate,
			"end_date":              row.EndDate,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("events/event_instance pk=%s: %v", row.ID, err)
			continue
		}
		if created {
			ctrs.Events.CandidatesCreated++
		} else {
			ctrs.Events.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindEvent, cid, "event_instance", row.ID, "operational_db", nil, ctrs)
		ctrs.Events.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestYachts(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var yachts []models.Yacht
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&yachts).Error; err != nil {
		return err
	}
	for _, y := range yachts {
		normSail := ""
		if y.NormalizedSailNumber != nil {
			normSail = *y.NormalizedSailNumber
		}
		fp := resolution.YachtFingerprint(y.NormalizedName, normSail)
		cid, created, err := store.UpsertCandidate(ctx, resolution.KindYacht, fp, map[string]any{
			"name":                   strPtr(y.Name),
			"normalized_name":        strPtr(y.NormalizedName),
			"sail_number":            y.SailNumber,
			"normalized_sail_number": y.NormalizedSailNumber,
			"length_feet":            y.LengthFeet,
			"yacht_type":             y.Model,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("yachts/yacht pk=%s: %v", y.ID, err)
			continue
		}
		if created {
			ctrs.Yachts.CandidatesCreated++
		} else {
			ctrs.Yachts.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindYacht, cid, "yacht", y.ID, "operational_db", nil, ctrs)
		ctrs.Yachts.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestParticipantsFromParticipant(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var participants []models.Participant
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&participants).Error; err != nil {
		return err
	}
	for _, p := range participants {
		bestEmail, err := bestContactValue(ctx, sp, p.ID, "email")
		if err != nil {
			return err
		}
		bestPhone, err := bestContactValue(ctx, sp, p.ID, "phone")
		if err != nil {
			return err
		}
		email := ""
		if bestEmail != nil {
			email = *bestEmail
		}
		fp := resolution.ParticipantFingerprint(p.NormalizedFullName, email)
		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(p.FullName),
			"normalized_name": strPtr(p.NormalizedFullName),
			"date_of_birth":   p.DateOfBirth,
			"best_email":      bestEmail,
			"best_phone":      bestPhone,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/participant pk=%s: %v", p.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid, "participant", p.ID, "operational_db", nil, ctrs)

		var contacts []models.ParticipantContactPoint
		if err := sp.WithContext(ctx).
			Where("participant_id = ?", p.ID).
			Order("created_at ASC").
			Find(&contacts).Error; err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/participant pk=%s contacts: %v", p.ID, err)
			continue
		}
		for _, c := range contacts {
			err := store.UpsertContact(ctx, cid, c.ContactType, c.ContactValueRaw,
				c.ContactValueNormalized, c.IsPrimary, "participant_contact_point", c.ID.String())
			if err != nil {
				ctrs.DBErrors++
				ctrs.Warnf("participants/participant pk=%s contact=%s: %v", p.ID, c.ID, err)
				continue
			}
			ctrs.ParticipantContactsLinked++
		}

		var addresses []models.ParticipantAddress
		if err := sp.WithContext(ctx).
			Where("participant_id = ?", p.ID).
			Order("created_at ASC").
			Find(&addresses).Error; err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/participant pk=%s addresses: %v", p.ID, err)
			continue
		}
		for _, a := range addresses {
			if a.AddressRaw == nil || *a.AddressRaw == "" {
				continue
			}
			err := store.UpsertAddress(ctx, &models.CandidateParticipantAddress{
				CandidateParticipantID: cid,
				AddressRaw:             *a.AddressRaw,
				Line1:                  a.Line1,
				City:                   a.City,
				State:                  a.State,
				PostalCode:             a.PostalCode,
				CountryCode:            a.CountryCode,
				IsPrimary:              a.IsPrimary,
				SourceTableName:        "participant_address",
				SourceRowPK:            a.ID.String(),
			})
			if err != nil {
				ctrs.DBErrors++
				ctrs.Warnf("participants/participant pk=%s address=%s: %v", p.ID, a.ID, err)
				continue
			}
			ctrs.ParticipantAddressesLinked++
		}

		ctrs.Participants.RowsIngested++
	}
	return nil
}

func bestContactValue(ctx context.Context, sp *gorm.DB, participantID uuid.UUID, contactType string) (*string, error) {
	var contact models.ParticipantContactPoint
	err := sp.WithContext(ctx).
		Where("participant_id = ? AND contact_type = ?", participantID, contactType).
		Order("is_primary DESC, created_at ASC").
		Limit(1).
		Take(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact.ContactValueNormalized, nil
}

func (in *Ingestor) ingestParticipantsFromJotform(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var rows []models.JotformWaiverSubmission
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		payload := parsePayload(row.RawPayload)
		rawName := payloadString(payload, "Name", "name")
		rawEmail := payloadString(payload, "Competitor E mail", "email")
		if rawName == "" {
			ctrs.Warnf("jotform pk=%s: skipped, missing name", row.ID)
			continue
		}
		normName := normalize.Name(rawName)
		normEmail := normalize.Email(rawEmail)
		fp := resolution.ParticipantFingerprint(normName, normEmail)

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(rawName),
			"normalized_name": strPtr(normName),
			"best_email":      strPtr(normEmail),
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/jotform pk=%s: %v", row.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid,
			"jotform_waiver_submission", row.ID,
			sourceSystemOr(row.SourceSystem, "jotform_csv_export"), row.RowHash, ctrs)

		if normEmail != "" {
			if err := store.UpsertContact(ctx, cid, "email", rawEmail, &normEmail, true,
				"jotform_waiver_submission", row.ID.String()); err == nil {
				ctrs.ParticipantContactsLinked++
			}
		}
		if err := in.upsertRole(ctx, store, cid, "registrant", "jotform_waiver", nil, ctrs); err == nil {
			ctrs.ParticipantRolesLinked++
		}
		ctrs.Participants.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestParticipantsFromMailchimp(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var rows []models.MailchimpAudienceRow
	if err := sp.WithContext(ctx).Order("ingested_at ASC").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		payload := parsePayload(row.RawPayload)
		first := payloadString(payload, "First Name", "first_name")
		last := payloadString(payload, "Last Name", "last_name")
		rawName := normalize.Space(first + " " + last)
		rawEmail := payloadString(payload, "Email Address", "email")

		normEmail := normalize.Email(rawEmail)
		if normEmail == "" && row.SourceEmailNormalized != nil {
			normEmail = *row.SourceEmailNormalized
		}
		if normEmail == "" {
			ctrs.Warnf("mailchimp pk=%s: skipped, missing email", row.ID)
			continue
		}
		if rawName == "" {
			rawName = normEmail
		}
		normName := normalize.Name(rawName)
		fp := resolution.ParticipantFingerprint(normName, normEmail)

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(rawName),
			"normalized_name": strPtr(normName),
			"best_email":      strPtr(normEmail),
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/mailchimp pk=%s: %v", row.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid,
			"mailchimp_audience_row", row.ID,
			sourceSystemOr(row.SourceSystem, "mailchimp_audience_csv"), row.RowHash, ctrs)

		contactRaw := rawEmail
		if contactRaw == "" {
			contactRaw = normEmail
		}
		if err := store.UpsertContact(ctx, cid, "email", contactRaw, &normEmail, true,
			"mailchimp_audience_row", row.ID.String()); err == nil {
			ctrs.ParticipantContactsLinked++
		}
		ctrs.Participants.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestParticipantsFromAirtable(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var rows []models.AirtableCopyRow
	if err := sp.WithContext(ctx).
		Where("asset_name IN ?", []string{"participants", "owners"}).
		Order("ingested_at ASC").
		Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		payload := parsePayload(row.RawPayload)
		var rawName, rawEmail, role string
		if row.AssetName == "participants" {
			rawName = payloadString(payload, "name", "Name")
			rawEmail = payloadString(payload, "competitorE", "email")
			role = "registrant"
		} else {
			rawName = payloadString(payload, "ownerName", "name")
			rawEmail = payloadString(payload, "email")
			role = "owner"
		}
		if rawName == "" {
			ctrs.Warnf("airtable/%s pk=%s: skipped, missing name", row.AssetName, row.ID)
			continue
		}
		normName := normalize.Name(rawName)
		normEmail := normalize.Email(rawEmail)
		fp := resolution.ParticipantFingerprint(normName, normEmail)

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(rawName),
			"normalized_name": strPtr(normName),
			"best_email":      strPtr(normEmail),
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/airtable/%s pk=%s: %v", row.AssetName, row.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid,
			"airtable_copy_row", row.ID,
			sourceSystemOr(row.SourceSystem, "airtable_copy_csv"), row.RowHash, ctrs)

		if normEmail != "" {
			if err := store.UpsertContact(ctx, cid, "email", rawEmail, &normEmail, true,
				"airtable_copy_row", row.ID.String()); err == nil {
				ctrs.ParticipantContactsLinked++
			}
		}
		if err := in.upsertRole(ctx, store, cid, role, "airtable_"+row.AssetName, nil, ctrs); err == nil {
			ctrs.ParticipantRolesLinked++
		}
		ctrs.Participants.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestParticipantsFromYachtScoring(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var rows []models.YachtScoringRawRow
	if err := sp.WithContext(ctx).
		Where("asset_type IN ?", []string{"deduplicated_entry", "scraped_entry_listing"}).
		Order("ingested_at ASC").
		Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		payload := parsePayload(row.RawPayload)
		rawName := payloadString(payload, "ownerName", "Owner Name")
		if rawName == "" {
			ctrs.RowsSkippedNoOwnerName++
			continue
		}
		normName := normalize.Name(rawName)
		if normName == "" {
			ctrs.RowsSkippedNoOwnerName++
			continue
		}
		fp := resolution.ParticipantFingerprint(normName, "")

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(rawName),
			"normalized_name": strPtr(normName),
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/yacht_scoring/%s pk=%s: %v", row.AssetType, row.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid,
			"yacht_scoring_raw_row", row.ID,
			sourceSystemOr(row.SourceSystem, "yacht_scoring_csv"), row.RowHash, ctrs)

		if err := in.upsertRole(ctx, store, cid, "owner", "yacht_scoring_"+row.AssetType, nil, ctrs); err == nil {
			ctrs.ParticipantRolesLinked++
		}
		ctrs.Participants.RowsIngested++
	}
	return nil
}

func (in *Ingestor) ingestParticipantsFromRelatedContacts(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var rows []models.ParticipantRelatedContact
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		rawName := ""
		if row.RelatedFullName != nil {
			rawName = normalize.Trim(*row.RelatedFullName)
		}
		if rawName == "" {
			ctrs.Warnf("related_contacts pk=%s: skipped, missing name", row.ID)
			continue
		}
		normName := normalize.Name(rawName)
		email := ""
		if row.EmailNormalized != nil {
			email = *row.EmailNormalized
		}
		fp := resolution.ParticipantFingerprint(normName, email)

		role := "guardian"
		if row.RelatedContactType == "emergency" {
			role = "emergency_contact"
		}

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindParticipant, fp, map[string]any{
			"display_name":    strPtr(rawName),
			"normalized_name": strPtr(normName),
			"best_email":      row.EmailNormalized,
			"best_phone":      row.PhoneNormalized,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("participants/related_contacts pk=%s: %v", row.ID, err)
			continue
		}
		if created {
			ctrs.Participants.CandidatesCreated++
		} else {
			ctrs.Participants.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindParticipant, cid,
			"participant_related_contact", row.ID, "operational_db", nil, ctrs)

		if err := in.upsertRole(ctx, store, cid, role, "jotform_waiver", nil, ctrs); err == nil {
			ctrs.ParticipantRolesLinked++
		}
		ctrs.Participants.RowsIngested++
	}
	return nil
}

// entryRoleMap translates event_entry_participant roles to candidate
// role assignments.
var entryRoleMap = map[string]string{
	"skipper":       "skipper",
	"crew":          "crew",
	"owner_contact": "owner",
	"registrant":    "registrant",
	"other":         "other",
}

func (in *Ingestor) ingestRegistrations(ctx context.Context, sp *gorm.DB, ctrs *IngestCounters) error {
	store := in.store.WithTx(sp)
	var entries []models.EventEntry
	if err := sp.WithContext(ctx).Order("created_at ASC").Find(&entries).Error; err != nil {
		return err
	}
	for _, entry := range entries {
		candEventID, err := store.CandidateIDForSource(ctx, resolution.KindEvent, "event_instance", entry.EventInstanceID.String())
		if err != nil {
			return err
		}
		if candEventID == nil {
			ctrs.Warnf("registrations/event_entry pk=%s: no candidate event for event_instance=%s, skipping",
				entry.ID, entry.EventInstanceID)
			continue
		}
		candYachtID, err := store.CandidateIDForSource(ctx, resolution.KindYacht, "yacht", entry.YachtID.String())
		if err != nil {
			return err
		}

		primaryParticipantID, err := primaryEntryParticipant(ctx, sp, entry.ID)
		if err != nil {
			return err
		}
		var candParticipantID *uuid.UUID
		if primaryParticipantID != nil {
			candParticipantID, err = store.CandidateIDForSource(ctx, resolution.KindParticipant, "participant", primaryParticipantID.String())
			if err != nil {
				return err
			}
		}

		extID := ""
		if entry.RegistrationExternalID != nil {
			extID = *entry.RegistrationExternalID
		}
		yachtRef := ""
		if candYachtID != nil {
			yachtRef = candYachtID.String()
		}
		fp := resolution.RegistrationFingerprint(candEventID.String(), extID, yachtRef)

		cid, created, err := store.UpsertCandidate(ctx, resolution.KindRegistration, fp, map[string]any{
			"registration_external_id":         entry.RegistrationExternalID,
			"candidate_event_id":               candEventID,
			"candidate_yacht_id":               candYachtID,
			"candidate_primary_participant_id": candParticipantID,
			"entry_status":                     strPtr(entry.EntryStatus),
			"registered_at":                    entry.RegisteredAt,
		})
		if err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("registrations/event_entry pk=%s: %v", entry.ID, err)
			continue
		}
		if created {
			ctrs.Registrations.CandidatesCreated++
		} else {
			ctrs.Registrations.CandidatesEnriched++
		}
		in.recordSourceLink(ctx, store, resolution.KindRegistration, cid, "event_entry", entry.ID, "operational_db", nil, ctrs)

		var crew []models.EventEntryParticipant
		if err := sp.WithContext(ctx).
			Where("event_entry_id = ?", entry.ID).
			Find(&crew).Error; err != nil {
			ctrs.DBErrors++
			ctrs.Warnf("registrations/event_entry pk=%s crew: %v", entry.ID, err)
			continue
		}
		for _, member := range crew {
			pcid, err := store.CandidateIDForSource(ctx, resolution.KindParticipant, "participant", member.ParticipantID.String())
			if err != nil || pcid == nil {
				continue
			}
			role, ok := entryRoleMap[member.Role]
			if !ok {
				role = "other"
			}
			if err := in.upsertRole(ctx, store, *pcid, role, "event_entry_participant", &cid, ctrs); err == nil {
				ctrs.ParticipantRolesLinked++
			}
		}

		ctrs.Registrations.RowsIngested++
	}
	return nil
}

// primaryEntryParticipant picks the entry's primary participant: the
// first skipper, else the first owner contact.
func primaryEntryParticipant(ctx context.Context, sp *gorm.DB, entryID uuid.UUID) (*uuid.UUID, error) {
	var member models.EventEntryParticipant
	err := sp.WithContext(ctx).
		Where("event_entry_id = ? AND role IN ?", entryID, []string{"skipper", "owner_contact"}).
		Order("CASE role WHEN 'skipper' THEN 0 ELSE 1 END, created_at ASC").
		Limit(1).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member.ParticipantID, nil
}

func (in *Ingestor) recordSourceLink(
	ctx context.Context,
	store *persistence.ResolutionStore,
	kind resolution.Kind,
	candidateID uuid.UUID,
	sourceTable string,
	sourcePK uuid.UUID,
	sourceSystem string,
	rowHash *string,
	ctrs *IngestCounters,
) {
	inserted, err := store.LinkSource(ctx, kind, candidateID, sourceTable, sourcePK.String(), sourceSystem, rowHash)
	if err != nil {
		ctrs.DBErrors++
		ctrs.Warnf("%s link pk=%s: %v", sourceTable, sourcePK, err)
		return
	}
	if inserted {
		ctrs.SourceLinksInserted++
	} else {
		ctrs.SourceLinksSkippedDuplicate++
	}
}

func (in *Ingestor) upsertRole(
	ctx context.Context,
	store *persistence.ResolutionStore,
	candidateParticipantID uuid.UUID,
	role, sourceContext string,
	candidateRegistrationID *uuid.UUID,
	ctrs *IngestCounters,
) error {
	err := store.UpsertRole(ctx, &models.CandidateParticipantRole{
		CandidateParticipantID:  candidateParticipantID,
		Role:                    role,
		CandidateRegistrationID: candidateRegistrationID,
		SourceContext:           strPtr(sourceContext),
	})
	if err != nil {
		ctrs.DBErrors++
		ctrs.Warnf("role %s for candidate=%s: %v", role, candidateParticipantID, err)
	}
	return err
}
