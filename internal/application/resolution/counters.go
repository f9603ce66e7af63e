package resolution

import "fmt"

const maxReportedWarnings = 50

// KindCounters tracks ingestion results for one entity kind.
type KindCounters struct {
	RowsIngested       int `json:"rows_ingested"`
	CandidatesCreated  int `json:"candidates_created"`
	CandidatesEnriched int `json:"candidates_enriched"`
}

// IngestCounters tracks a source-to-candidate run.
type IngestCounters struct {
	Clubs         KindCounters `json:"clubs"`
	Events        KindCounters `json:"events"`
	Yachts        KindCounters `json:"yachts"`
	Participants  KindCounters `json:"participants"`
	Registrations KindCounters `json:"registrations"`

	ParticipantContactsLinked  int `json:"participant_contacts_linked"`
	ParticipantAddressesLinked int `json:"participant_addresses_linked"`
	ParticipantRolesLinked     int `json:"participant_roles_linked"`

	SourceLinksInserted         int `json:"source_links_inserted"`
	SourceLinksSkippedDuplicate int `json:"source_links_skipped_duplicate"`

	RowsSkippedNoOwnerName int `json:"rows_skipped_no_owner_name"`

	DBErrors int      `json:"db_errors"`
	Warnings []string `json:"warnings"`
}

// Warnf appends a formatted warning.
func (c *IngestCounters) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// RowsProcessed sums the ingested rows across kinds.
func (c *IngestCounters) RowsProcessed() int {
	return c.Clubs.RowsIngested + c.Events.RowsIngested + c.Yachts.RowsIngested +
		c.Participants.RowsIngested + c.Registrations.RowsIngested
}

// ScoreCounters tracks one scoring pass over one entity kind.
type ScoreCounters struct {
	CandidatesScored      int      `json:"candidates_scored"`
	CandidatesAutoPromote int      `json:"candidates_auto_promote"`
	CandidatesReview      int      `json:"candidates_review"`
	CandidatesHold        int      `json:"candidates_hold"`
	CandidatesRejected    int      `json:"candidates_rejected"`
	NBAsWritten           int      `json:"nbas_written"`
	DBErrors              int      `json:"db_errors"`
	Warnings              []string `json:"warnings"`
}

// Warnf appends a formatted warning.
func (c *ScoreCounters) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// TruncatedWarnings caps the warning list for persisted counters.
func (c *ScoreCounters) TruncatedWarnings() []string {
	if len(c.Warnings) > maxReportedWarnings {
		return c.Warnings[:maxReportedWarnings]
	}
	return c.Warnings
}

// PromoteCounters tracks one promotion pass.
type PromoteCounters struct {
	CandidatesPromoted          int      `json:"candidates_promoted"`
	CandidatesAlreadyPromoted   int      `json:"candidates_already_promoted"`
	CandidatesSkippedMissingDep int      `json:"candidates_skipped_missing_dep"`
	DBErrors                    int      `json:"db_errors"`
	Warnings                    []string `json:"warnings"`
}

// Warnf appends a formatted warning.
func (c *PromoteCounters) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// ManualApplyCounters tracks a decision-sheet run.
type ManualApplyCounters struct {
	RowsRead                   int      `json:"rows_read"`
	RowsApplied                int      `json:"rows_applied"`
	RowsSkippedAlreadyPromoted int      `json:"rows_skipped_already_promoted"`
	RowsSkippedMissingDep      int      `json:"rows_skipped_missing_dep"`
	RowsInvalid                int      `json:"rows_invalid"`
	DBErrors                   int      `json:"db_errors"`
	Warnings                   []string `json:"warnings"`
}

// Warnf appends a formatted warning.
func (c *ManualApplyCounters) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// LifecycleCounters tracks a lifecycle-sheet run.
type LifecycleCounters struct {
	RowsRead    int      `json:"rows_read"`
	RowsApplied int      `json:"rows_applied"`
	RowsInvalid int      `json:"rows_invalid"`
	RowsSkipped int      `json:"rows_skipped"`
	DBErrors    int      `json:"db_errors"`
	Warnings    []string `json:"warnings"`
}

// Warnf appends a formatted warning.
func (c *LifecycleCounters) Warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
