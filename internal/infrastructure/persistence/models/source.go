package models

import (
	"time"

	"github.com/google/uuid"
)

// Source models cover the operational and raw-capture tables the
// source-to-candidate stage reads. The importers that populate them are
// separate systems; this engine only queries these tables, so the
// models carry just the columns the ingestion queries touch.

// YachtClub is an operational club row.
type YachtClub struct {
	BaseModel
	Name           string  `gorm:"type:varchar(255);not null"`
	NormalizedName string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	WebsiteURL     *string `gorm:"column:website_url;type:varchar(512)"`
	VitalityStatus string  `gorm:"type:varchar(16);not null;default:'unknown'"`
}

func (YachtClub) TableName() string { return "yacht_club" }

// EventSeries is a recurring event owned by a club.
type EventSeries struct {
	BaseModel
	YachtClubID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"type:varchar(255);not null"`
	NormalizedName string    `gorm:"type:varchar(255);not null"`
}

func (EventSeries) TableName() string { return "event_series" }

// EventInstance is one season's running of an event series.
type EventInstance struct {
	BaseModel
	EventSeriesID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	DisplayName        *string    `gorm:"type:varchar(255)"`
	SeasonYear         *int       `gorm:""`
	StartDate          *time.Time `gorm:"type:date"`
	EndDate            *time.Time `gorm:"type:date"`
	RegistrationOpenAt *time.Time `gorm:""`
}

func (EventInstance) TableName() string { return "event_instance" }

// Yacht is an operational yacht row.
type Yacht struct {
	BaseModel
	Name                 string   `gorm:"type:varchar(255);not null"`
	NormalizedName       string   `gorm:"type:varchar(255);not null;index"`
	SailNumber           *string  `gorm:"type:varchar(64)"`
	NormalizedSailNumber *string  `gorm:"type:varchar(64)"`
	Model                *string  `gorm:"type:varchar(128)"`
	LengthFeet           *float64 `gorm:""`
}

func (Yacht) TableName() string { return "yacht" }

// Participant is an operational person row.
type Participant struct {
	BaseModel
	FullName           string     `gorm:"type:varchar(255);not null"`
	NormalizedFullName string     `gorm:"type:varchar(255);not null;index"`
	FirstName          *string    `gorm:"type:varchar(128)"`
	LastName           *string    `gorm:"type:varchar(128)"`
	DateOfBirth        *time.Time `gorm:"type:date"`
}

func (Participant) TableName() string { return "participant" }

// ParticipantContactPoint is an email or phone observation for a participant.
type ParticipantContactPoint struct {
	BaseModel
	ParticipantID          uuid.UUID `gorm:"type:uuid;not null;index"`
	ContactType            string    `gorm:"type:varchar(16);not null"`
	ContactSubtype         *string   `gorm:"type:varchar(32)"`
	ContactValueRaw        string    `gorm:"type:varchar(255);not null"`
	ContactValueNormalized *string   `gorm:"type:varchar(255)"`
	IsPrimary              bool      `gorm:"not null;default:false"`
}

func (ParticipantContactPoint) TableName() string { return "participant_contact_point" }

// ParticipantAddress is a postal address observation for a participant.
type ParticipantAddress struct {
	BaseModel
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;index"`
	AddressRaw    *string   `gorm:"type:text"`
	Line1         *string   `gorm:"type:varchar(255)"`
	City          *string   `gorm:"type:varchar(128)"`
	State         *string   `gorm:"type:varchar(64)"`
	PostalCode    *string   `gorm:"type:varchar(16)"`
	CountryCode   *string   `gorm:"type:varchar(2)"`
	IsPrimary     bool      `gorm:"not null;default:false"`
}

func (ParticipantAddress) TableName() string { return "participant_address" }

// ParticipantRelatedContact is an emergency or guardian contact
// captured on a waiver.
type ParticipantRelatedContact struct {
	BaseModel
	ParticipantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	RelatedContactType string    `gorm:"type:varchar(16);not null"`
	RelatedFullName    *string   `gorm:"type:varchar(255)"`
	PhoneNormalized    *string   `gorm:"type:varchar(32)"`
	EmailNormalized    *string   `gorm:"type:varchar(255)"`
}

func (ParticipantRelatedContact) TableName() string { return "participant_related_contact" }

// EventEntry is an operational registration row.
type EventEntry struct {
	BaseModel
	EventInstanceID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_event_entry_instance_yacht,priority:1"`
	YachtID                uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_event_entry_instance_yacht,priority:2"`
	EntryStatus            string     `gorm:"type:varchar(32);not null"`
	RegistrationSource     *string    `gorm:"type:varchar(64)"`
	RegistrationExternalID *string    `gorm:"type:varchar(128)"`
	RegisteredAt           *time.Time `gorm:""`
}

func (EventEntry) TableName() string { return "event_entry" }

// EventEntryParticipant links a participant to an entry in a role.
type EventEntryParticipant struct {
	BaseModel
	EventEntryID       uuid.UUID `gorm:"type:uuid;not null;index"`
	ParticipantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Role               string    `gorm:"type:varchar(32);not null"`
	ParticipationState *string   `gorm:"type:varchar(32)"`
	SourceSystem       *string   `gorm:"type:varchar(64)"`
}

func (EventEntryParticipant) TableName() string { return "event_entry_participant" }

// JotformWaiverSubmission is a raw-capture waiver row.
type JotformWaiverSubmission struct {
	BaseModel
	RawPayload   string  `gorm:"type:jsonb;not null"`
	RowHash      *string `gorm:"type:varchar(64)"`
	SourceSystem *string `gorm:"type:varchar(64)"`
}

func (JotformWaiverSubmission) TableName() string { return "jotform_waiver_submission" }

// MailchimpAudienceRow is a raw-capture audience row.
type MailchimpAudienceRow struct {
	BaseModel
	RawPayload            string    `gorm:"type:jsonb;not null"`
	RowHash               *string   `gorm:"type:varchar(64)"`
	SourceSystem          *string   `gorm:"type:varchar(64)"`
	SourceEmailNormalized *string   `gorm:"type:varchar(255)"`
	IngestedAt            time.Time `gorm:"not null"`
}

func (MailchimpAudienceRow) TableName() string { return "mailchimp_audience_row" }

// AirtableCopyRow is a raw-capture row from an Airtable base export.
type AirtableCopyRow struct {
	BaseModel
	AssetName       string    `gorm:"type:varchar(32);not null;index"`
	SourcePrimaryID *string   `gorm:"column:source_primary_id;type:varchar(128)"`
	RawPayload      string    `gorm:"type:jsonb;not null"`
	RowHash         *string   `gorm:"type:varchar(64)"`
	SourceSystem    *string   `gorm:"type:varchar(64)"`
	IngestedAt      time.Time `gorm:"not null"`
}

func (AirtableCopyRow) TableName() string { return "airtable_copy_row" }

// YachtScoringRawRow is a raw-capture row from a YachtScoring scrape.
type YachtScoringRawRow struct {
	BaseModel
	AssetType     string    `gorm:"type:varchar(32);not null;index"`
	SourceEventID *string   `gorm:"column:source_event_id;type:varchar(64)"`
	SourceEntryID *string   `gorm:"column:source_entry_id;type:varchar(64)"`
	RawPayload    string    `gorm:"type:jsonb;not null"`
	RowHash       *string   `gorm:"type:varchar(64)"`
	SourceSystem  *string   `gorm:"type:varchar(64)"`
	IngestedAt    time.Time `gorm:"not null"`
}

func (YachtScoringRawRow) TableName() string { return "yacht_scoring_raw_row" }
