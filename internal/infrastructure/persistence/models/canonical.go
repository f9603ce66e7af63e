package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Canonical tables hold the golden records produced by promotion. Their
// attribute values originate from candidates; per-attribute origin is
// recorded in canonical_attribute_provenance.

// CanonicalClub is the golden record for a yacht club.
type CanonicalClub struct {
	BaseModel
	Name                     *string          `gorm:"type:varchar(255)"`
	NormalizedName           *string          `gorm:"type:varchar(255)"`
	Website                  *string          `gorm:"type:varchar(512)"`
	Phone                    *string          `gorm:"type:varchar(32)"`
	AddressRaw               *string          `gorm:"type:text"`
	StateUSA                 *string          `gorm:"column:state_usa;type:varchar(2)"`
	CanonicalConfidenceScore *decimal.Decimal `gorm:"type:decimal(5,4)"`
}

func (CanonicalClub) TableName() string { return "canonical_club" }

// CanonicalEvent is the golden record for an event instance.
type CanonicalEvent struct {
	BaseModel
	EventName                *string          `gorm:"type:varchar(255)"`
	NormalizedEventName      *string          `gorm:"type:varchar(255)"`
	SeasonYear               *int             `gorm:""`
	EventExternalID          *string          `gorm:"type:varchar(128)"`
	StartDate                *time.Time       `gorm:"type:date"`
	EndDate                  *time.Time       `gorm:"type:date"`
	LocationRaw              *string          `gorm:"type:text"`
	CanonicalConfidenceScore *decimal.Decimal `gorm:"type:decimal(5,4)"`
}

func (CanonicalEvent) TableName() string { return "canonical_event" }

// CanonicalYacht is the golden record for a yacht.
type CanonicalYacht struct {
	BaseModel
	Name                     *string          `gorm:"type:varchar(255)"`
	NormalizedName           *string          `gorm:"type:varchar(255)"`
	SailNumber               *string          `gorm:"type:varchar(64)"`
	NormalizedSailNumber     *string          `gorm:"type:varchar(64)"`
	LengthFeet               *float64         `gorm:""`
	YachtType                *string          `gorm:"type:varchar(128)"`
	CanonicalConfidenceScore *decimal.Decimal `gorm:"type:decimal(5,4)"`
}

func (CanonicalYacht) TableName() string { return "canonical_yacht" }

// CanonicalParticipant is the golden record for a person.
type CanonicalParticipant struct {
	BaseModel
	DisplayName              *string          `gorm:"type:varchar(255)"`
	NormalizedName           *string          `gorm:"type:varchar(255)"`
	FirstName                *string          `gorm:"type:varchar(128)"`
	LastName                 *string          `gorm:"type:varchar(128)"`
	DateOfBirth              *time.Time       `gorm:"type:date"`
	BestEmail                *string          `gorm:"type:varchar(255)"`
	BestPhone                *string          `gorm:"type:varchar(32)"`
	CanonicalConfidenceScore *decimal.Decimal `gorm:"type:decimal(5,4)"`
}

func (CanonicalParticipant) TableName() string { return "canonical_participant" }

// CanonicalRegistration is the golden record for an event entry. It
// references other canonical entities, never candidates.
type CanonicalRegistration struct {
	BaseModel
	RegistrationExternalID        *string          `gorm:"type:varchar(128)"`
	CanonicalEventID              *uuid.UUID       `gorm:"type:uuid;index"`
	CanonicalYachtID              *uuid.UUID       `gorm:"type:uuid;index"`
	CanonicalPrimaryParticipantID *uuid.UUID       `gorm:"type:uuid;index"`
	EntryStatus                   *string          `gorm:"type:varchar(32)"`
	RegisteredAt                  *time.Time       `gorm:""`
	CanonicalConfidenceScore      *decimal.Decimal `gorm:"type:decimal(5,4)"`
}

func (CanonicalRegistration) TableName() string { return "canonical_registration" }
