package resolution

import (
	"fmt"
)

// Kind identifies one of the resolvable entity types.
type Kind string

const (
	KindClub         Kind = "club"
	KindEvent        Kind = "event"
	KindYacht        Kind = "yacht"
	KindParticipant  Kind = "participant"
	KindRegistration Kind = "registration"
)

// AllKinds lists every kind in promotion dependency order: clubs and
// events carry no upstream references, registrations reference events,
// yachts and participants, so they resolve last.
var AllKinds = []Kind{KindClub, KindEvent, KindYacht, KindParticipant, KindRegistration}

// ParseKind validates a CLI or CSV entity_type value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClub, KindEvent, KindYacht, KindParticipant, KindRegistration:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ParseKinds expands "all" into promotion order, otherwise returns the
// single parsed kind.
func ParseKinds(s string) ([]Kind, error) {
	if s == "" || s == "all" {
		return AllKinds, nil
	}
	k, err := ParseKind(s)
	if err != nil {
		return nil, err
	}
	return []Kind{k}, nil
}

// CandidateTable returns the staging table name for the kind.
func (k Kind) CandidateTable() string {
	return "candidate_" + string(k)
}

// CanonicalTable returns the resolved table name for the kind.
func (k Kind) CanonicalTable() string {
	return "canonical_" + string(k)
}

func (k Kind) String() string { return string(k) }

// ProvenanceAttrs lists the attributes tracked per canonical entity in
// canonical_attribute_provenance. Order matters for deterministic
// provenance writes during merge and split.
func (k Kind) ProvenanceAttrs() []string {
	switch k {
	case KindParticipant:
		return []string{"display_name", "normalized_name", "date_of_birth", "best_email", "best_phone"}
	case KindYacht:
		return []string{"name", "normalized_name", "sail_number", "normalized_sail_number", "length_feet", "yacht_type"}
	case KindClub:
		return []string{"name", "normalized_name", "website", "phone", "address_raw", "state_usa"}
	case KindEvent:
		return []string{"event_name", "normalized_event_name", "season_year", "event_external_id", "start_date", "end_date", "location_raw"}
	case KindRegistration:
		return []string{"registration_external_id", "entry_status", "registered_at"}
	}
	return nil
}

// PromoteColumns lists the candidate columns copied into the canonical
// table when a candidate is promoted, in canonical-table column order.
func (k Kind) PromoteColumns() []string {
	switch k {
	case KindClub:
		return []string{"name", "normalized_name", "website", "phone", "address_raw", "state_usa"}
	case KindEvent:
		return []string{"event_name", "normalized_event_name", "season_year", "event_external_id", "start_date", "end_date", "location_raw"}
	case KindYacht:
		return []string{"name", "normalized_name", "sail_number", "normalized_sail_number", "length_feet", "yacht_type"}
	case KindParticipant:
		return []string{"display_name", "normalized_name", "date_of_birth", "best_email", "best_phone"}
	case KindRegistration:
		return []string{"registration_external_id", "entry_status", "registered_at"}
	}
	return nil
}

// CloneColumns lists the canonical columns copied when a split clones a
// canonical row. It extends ProvenanceAttrs with columns that are part
// of the canonical record but not attribute-level provenance tracked.
func (k Kind) CloneColumns() []string {
	switch k {
	case KindParticipant:
		return []string{"display_name", "normalized_name", "first_name", "last_name",
			"date_of_birth", "best_email", "best_phone", "canonical_confidence_score"}
	case KindRegistration:
		return []string{"registration_external_id", "canonical_event_id", "canonical_yacht_id",
			"canonical_primary_participant_id", "entry_status", "registered_at", "canonical_confidence_score"}
	default:
		return append(k.ProvenanceAttrs(), "canonical_confidence_score")
	}
}
