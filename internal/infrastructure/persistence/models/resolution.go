package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate tables hold fingerprint-keyed staging rows built from the
// operational and raw-capture tables. A candidate is never deleted by
// the pipelines; its resolution_state and promotion flags evolve.

// CandidateClub is the staging row for a yacht club identity.
type CandidateClub struct {
	BaseModel
	StableFingerprint string  `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name              *string `gorm:"type:varchar(255)"`
	NormalizedName    *string `gorm:"type:varchar(255)"`
	Website           *string `gorm:"type:varchar(512)"`
	Phone             *string `gorm:"type:varchar(32)"`
	AddressRaw        *string `gorm:"type:text"`
	StateUSA          *string `gorm:"column:state_usa;type:varchar(2)"`
	CandidateScoring
}

func (CandidateClub) TableName() string { return "candidate_club" }

// CandidateEvent is the staging row for an event instance identity.
type CandidateEvent struct {
	BaseModel
	StableFingerprint   string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	EventName           *string    `gorm:"type:varchar(255)"`
	NormalizedEventName *string    `gorm:"type:varchar(255)"`
	SeasonYear          *int       `gorm:""`
	EventExternalID     *string    `gorm:"type:varchar(128)"`
	StartDate           *time.Time `gorm:"type:date"`
	EndDate             *time.Time `gorm:"type:date"`
	LocationRaw         *string    `gorm:"type:text"`
	CandidateScoring
}

func (CandidateEvent) TableName() string { return "candidate_event" }

// CandidateYacht is the staging row for a yacht identity.
type CandidateYacht struct {
	BaseModel
	StableFingerprint    string   `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name                 *string  `gorm:"type:varchar(255)"`
	NormalizedName       *string  `gorm:"type:varchar(255)"`
	SailNumber           *string  `gorm:"type:varchar(64)"`
	NormalizedSailNumber *string  `gorm:"type:varchar(64)"`
	LengthFeet           *float64 `gorm:""`
	YachtType            *string  `gorm:"type:varchar(128)"`
	CandidateScoring
}

func (CandidateYacht) TableName() string { return "candidate_yacht" }

// CandidateParticipant is the staging row for a person identity.
type CandidateParticipant struct {
	BaseModel
	StableFingerprint string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName       *string    `gorm:"type:varchar(255)"`
	NormalizedName    *string    `gorm:"type:varchar(255)"`
	FirstName         *string    `gorm:"type:varchar(128)"`
	LastName          *string    `gorm:"type:varchar(128)"`
	DateOfBirth       *time.Time `gorm:"type:date"`
	BestEmail         *string    `gorm:"type:varchar(255)"`
	BestPhone         *string    `gorm:"type:varchar(32)"`
	CandidateScoring
}

func (CandidateParticipant) TableName() string { return "candidate_participant" }

// CandidateRegistration is the staging row for an event entry. The
// event reference is mandatory for promotion; yacht and participant
// references are optional.
type CandidateRegistration struct {
	BaseModel
	StableFingerprint             string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	RegistrationExternalID        *string    `gorm:"type:varchar(128)"`
	CandidateEventID              *uuid.UUID `gorm:"type:uuid;index"`
	CandidateYachtID              *uuid.UUID `gorm:"type:uuid;index"`
	CandidatePrimaryParticipantID *uuid.UUID `gorm:"type:uuid;index"`
	EntryStatus                   *string    `gorm:"type:varchar(32)"`
	RegisteredAt                  *time.Time `gorm:""`
	CandidateScoring
}

func (CandidateRegistration) TableName() string { return "candidate_registration" }

// CandidateScoring carries the scoring and promotion columns shared by
// every candidate table.
type CandidateScoring struct {
	QualityScore        *decimal.Decimal `gorm:"type:decimal(5,4)"`
	ResolutionState     string           `gorm:"type:varchar(16);not null;default:'review'"`
	ConfidenceReasons   *string          `gorm:"type:jsonb"`
	IsPromoted          bool             `gorm:"not null;default:false"`
	PromotedCanonicalID *uuid.UUID       `gorm:"type:uuid;index"`
	LastScoreRunID      *uuid.UUID       `gorm:"type:uuid"`
}

// CandidateParticipantContact is a deduplicated contact observation.
type CandidateParticipantContact struct {
	BaseModel
	CandidateParticipantID uuid.UUID `gorm:"type:uuid;not null;index"`
	ContactType            string    `gorm:"type:varchar(16);not null"`
	RawValue               string    `gorm:"type:varchar(255);not null"`
	NormalizedValue        *string   `gorm:"type:varchar(255)"`
	IsPrimary              bool      `gorm:"not null;default:false"`
	SourceTableName        string    `gorm:"type:varchar(64);not null"`
	SourceRowPK            string    `gorm:"column:source_row_pk;type:varchar(64);not null"`
}

func (CandidateParticipantContact) TableName() string { return "candidate_participant_contact" }

// CandidateParticipantAddress is a deduplicated postal address observation.
type CandidateParticipantAddress struct {
	BaseModel
	CandidateParticipantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cand_part_address,priority:1"`
	AddressRaw             string    `gorm:"type:text;not null;uniqueIndex:idx_cand_part_address,priority:2"`
	Line1                  *string   `gorm:"type:varchar(255)"`
	City                   *string   `gorm:"type:varchar(128)"`
	State                  *string   `gorm:"type:varchar(64)"`
	PostalCode             *string   `gorm:"type:varchar(16)"`
	CountryCode            *string   `gorm:"type:varchar(2)"`
	IsPrimary              bool      `gorm:"not null;default:false"`
	SourceTableName        string    `gorm:"type:varchar(64);not null"`
	SourceRowPK            string    `gorm:"column:source_row_pk;type:varchar(64);not null"`
}

func (CandidateParticipantAddress) TableName() string { return "candidate_participant_address" }

// CandidateParticipantRole records a role a participant held in some
// source context, optionally scoped to an event or a registration.
type CandidateParticipantRole struct {
	BaseModel
	CandidateParticipantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Role                    string     `gorm:"type:varchar(32);not null"`
	CandidateEventID        *uuid.UUID `gorm:"type:uuid"`
	CandidateRegistrationID *uuid.UUID `gorm:"type:uuid"`
	SourceContext           *string    `gorm:"type:varchar(64)"`
}

func (CandidateParticipantRole) TableName() string { return "candidate_participant_role_assignment" }

// CandidateSourceLink ties a candidate back to the exact source row it
// was observed in. One candidate accumulates links from many sources.
type CandidateSourceLink struct {
	BaseModel
	CandidateEntityType string          `gorm:"type:varchar(16);not null;uniqueIndex:idx_candidate_source_link,priority:1"`
	CandidateEntityID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_candidate_source_link,priority:2"`
	SourceTableName     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_candidate_source_link,priority:3"`
	SourceRowPK         string          `gorm:"column:source_row_pk;type:varchar(64);not null;uniqueIndex:idx_candidate_source_link,priority:4"`
	SourceRowHash       *string         `gorm:"type:varchar(64)"`
	SourceSystem        *string         `gorm:"type:varchar(64)"`
	LinkScore           decimal.Decimal `gorm:"type:decimal(5,4);not null;default:1.0"`
	LinkReason          *string         `gorm:"type:jsonb"`
}

func (CandidateSourceLink) TableName() string { return "candidate_source_link" }

// CandidateCanonicalLink records candidate→canonical promotion. A
// candidate links to at most one canonical entity.
type CandidateCanonicalLink struct {
	BaseModel
	CandidateEntityType string           `gorm:"type:varchar(16);not null;uniqueIndex:idx_candidate_canonical_link,priority:1"`
	CandidateEntityID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_candidate_canonical_link,priority:2"`
	CanonicalEntityID   uuid.UUID        `gorm:"type:uuid;not null;index"`
	PromotionScore      *decimal.Decimal `gorm:"type:decimal(5,4)"`
	PromotionMode       string           `gorm:"type:varchar(16);not null"`
	PromotedBy          string           `gorm:"type:varchar(128);not null"`
	PromotedAt          time.Time        `gorm:"not null"`
}

func (CandidateCanonicalLink) TableName() string { return "candidate_canonical_link" }

// CanonicalAttributeProvenance records which candidate supplied each
// attribute of a canonical entity and who decided it.
type CanonicalAttributeProvenance struct {
	BaseModel
	CanonicalEntityType string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_canonical_attr_provenance,priority:1"`
	CanonicalEntityID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_canonical_attr_provenance,priority:2"`
	AttributeName       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_canonical_attr_provenance,priority:3"`
	SourceCandidateID   *uuid.UUID `gorm:"type:uuid"`
	SourceSystem        *string    `gorm:"type:varchar(64)"`
	DecidedBy           string     `gorm:"type:varchar(32);not null"`
	DecidedAt           time.Time  `gorm:"not null"`
}

func (CanonicalAttributeProvenance) TableName() string { return "canonical_attribute_provenance" }

// NextBestAction is an enrichment recommendation emitted by the scorer.
type NextBestAction struct {
	BaseModel
	TargetEntityType   string          `gorm:"type:varchar(32);not null;index:idx_nba_target"`
	TargetEntityID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_nba_target"`
	ActionType         string          `gorm:"type:varchar(32);not null"`
	PriorityScore      decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	ReasonCode         string          `gorm:"type:varchar(64);not null"`
	ReasonDetail       *string         `gorm:"type:text"`
	RecommendedChannel string          `gorm:"type:varchar(32);not null"`
	Status             string          `gorm:"type:varchar(16);not null;default:'open'"`
	RuleVersion        *string         `gorm:"type:varchar(32)"`
}

func (NextBestAction) TableName() string { return "next_best_action" }

// ResolutionRuleSet is a registered YAML rule document. At most one row
// per (entity_type, source_system) is active.
type ResolutionRuleSet struct {
	BaseModel
	EntityType   string     `gorm:"type:varchar(16);not null;index"`
	SourceSystem *string    `gorm:"type:varchar(64)"`
	Version      string     `gorm:"type:varchar(32);not null"`
	YAMLContent  string     `gorm:"column:yaml_content;type:text;not null"`
	YAMLHash     string     `gorm:"column:yaml_hash;type:varchar(64);not null"`
	IsActive     bool       `gorm:"not null;default:false"`
	ActivatedAt  *time.Time `gorm:""`
}

func (ResolutionRuleSet) TableName() string { return "resolution_rule_set" }

// ResolutionScoreRun tracks one scorer invocation per entity type.
type ResolutionScoreRun struct {
	BaseModel
	EntityType  string     `gorm:"type:varchar(16);not null;index"`
	SourceScope *string    `gorm:"type:varchar(64)"`
	RuleSetID   *uuid.UUID `gorm:"type:uuid"`
	Status      string     `gorm:"type:varchar(16);not null"`
	FinishedAt  *time.Time `gorm:""`
	Counters    *string    `gorm:"type:jsonb"`
}

func (ResolutionScoreRun) TableName() string { return "resolution_score_run" }

// ResolutionManualActionLog is the audit trail for manual decisions and
// lifecycle corrections.
type ResolutionManualActionLog struct {
	BaseModel
	EntityType        string     `gorm:"type:varchar(16);not null;index"`
	CandidateEntityID *uuid.UUID `gorm:"type:uuid"`
	CanonicalEntityID *uuid.UUID `gorm:"type:uuid"`
	Action            string     `gorm:"type:varchar(16);not null"`
	Reason            *string    `gorm:"type:text"`
	Actor             string     `gorm:"type:varchar(128);not null"`
	DecisionSource    string     `gorm:"type:varchar(32);not null"`
}

func (ResolutionManualActionLog) TableName() string { return "resolution_manual_action_log" }

// LineageCoverageSnapshot is one coverage measurement for one entity type.
type LineageCoverageSnapshot struct {
	BaseModel
	EntityType                  string   `gorm:"type:varchar(16);not null;index"`
	CandidatesTotal             int      `gorm:"not null"`
	CandidatesLinkedToCanonical int      `gorm:"not null"`
	PctCandidateToCanonical     *float64 `gorm:""`
	SourceRowsInLinkTable       *int     `gorm:""`
	SourceRowsWithCandidate     *int     `gorm:""`
	PctSourceToCandidate        *float64 `gorm:""`
	ThresholdCanonicalPct       float64  `gorm:"not null"`
	ThresholdSourcePct          float64  `gorm:"not null"`
	UnresolvedCriticalDeps      int      `gorm:"not null"`
	ThresholdsPassed            bool     `gorm:"not null"`
	Notes                       *string  `gorm:"type:text"`
}

func (LineageCoverageSnapshot) TableName() string { return "lineage_coverage_snapshot" }
