package resolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const reportBanner = "============================================================"

// WriteRunReport persists the JSON run report under reportsDir, named
// by run id, and returns the file path.
func WriteRunReport(reportsDir string, result *RunResult) (string, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run report: %w", err)
	}
	path := filepath.Join(reportsDir, result.RunID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	return path, nil
}

func appendWarnings(lines []string, warnings []string, limit int) []string {
	if len(warnings) == 0 {
		return lines
	}
	lines = append(lines, "", fmt.Sprintf("Warnings (%d):", len(warnings)))
	shown := warnings
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, w := range shown {
		lines = append(lines, "  "+w)
	}
	if len(warnings) > limit {
		lines = append(lines, fmt.Sprintf("  ... and %d more", len(warnings)-limit))
	}
	return lines
}

// BuildIngestReport renders the human summary of an ingest run.
func BuildIngestReport(ctrs *IngestCounters, dryRun bool, warningLimit int) string {
	lines := []string{
		reportBanner,
		"Source-to-Candidate Ingestion Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
	}
	kindLine := func(name string, kc KindCounters) string {
		return fmt.Sprintf("  %-14s rows=%d created=%d enriched=%d",
			name+":", kc.RowsIngested, kc.CandidatesCreated, kc.CandidatesEnriched)
	}
	lines = append(lines,
		kindLine("clubs", ctrs.Clubs),
		kindLine("events", ctrs.Events),
		kindLine("yachts", ctrs.Yachts),
		kindLine("participants", ctrs.Participants),
		kindLine("registrations", ctrs.Registrations),
		fmt.Sprintf("  contacts linked:          %d", ctrs.ParticipantContactsLinked),
		fmt.Sprintf("  addresses linked:         %d", ctrs.ParticipantAddressesLinked),
		fmt.Sprintf("  roles linked:             %d", ctrs.ParticipantRolesLinked),
		fmt.Sprintf("  source links inserted:    %d", ctrs.SourceLinksInserted),
		fmt.Sprintf("  source links duplicate:   %d", ctrs.SourceLinksSkippedDuplicate),
		fmt.Sprintf("  rows skipped (no owner):  %d", ctrs.RowsSkippedNoOwnerName),
		fmt.Sprintf("DB errors:                  %d", ctrs.DBErrors),
	)
	lines = appendWarnings(lines, ctrs.Warnings, warningLimit)
	lines = append(lines, reportBanner)
	return strings.Join(lines, "\n")
}

// BuildScoreReport renders the human summary of a scoring run.
func BuildScoreReport(ctrs *ScoreCounters, dryRun bool, warningLimit int) string {
	lines := []string{
		reportBanner,
		"Candidate Scoring Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
		fmt.Sprintf("  candidates scored:       %d", ctrs.CandidatesScored),
		fmt.Sprintf("    auto_promote:          %d", ctrs.CandidatesAutoPromote),
		fmt.Sprintf("    review:                %d", ctrs.CandidatesReview),
		fmt.Sprintf("    hold:                  %d", ctrs.CandidatesHold),
		fmt.Sprintf("    reject:                %d", ctrs.CandidatesRejected),
		fmt.Sprintf("  NBAs written:            %d", ctrs.NBAsWritten),
		fmt.Sprintf("DB errors:                 %d", ctrs.DBErrors),
	}
	lines = appendWarnings(lines, ctrs.Warnings, warningLimit)
	lines = append(lines, reportBanner)
	return strings.Join(lines, "\n")
}

// BuildPromoteReport renders the human summary of a promotion run.
func BuildPromoteReport(ctrs *PromoteCounters, dryRun bool, warningLimit int) string {
	lines := []string{
		reportBanner,
		"Candidate-to-Canonical Promotion Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
		fmt.Sprintf("  candidates promoted:         %d", ctrs.CandidatesPromoted),
		fmt.Sprintf("  already promoted (skipped):  %d", ctrs.CandidatesAlreadyPromoted),
		fmt.Sprintf("  skipped (dep not promoted):  %d", ctrs.CandidatesSkippedMissingDep),
		fmt.Sprintf("DB errors:                     %d", ctrs.DBErrors),
	}
	lines = appendWarnings(lines, ctrs.Warnings, warningLimit)
	lines = append(lines, reportBanner)
	return strings.Join(lines, "\n")
}

// BuildManualApplyReport renders the human summary of a decision-sheet
// run.
func BuildManualApplyReport(ctrs *ManualApplyCounters, dryRun bool, warningLimit int) string {
	lines := []string{
		reportBanner,
		"Manual Review Decision Apply Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
		fmt.Sprintf("  rows read:                      %d", ctrs.RowsRead),
		fmt.Sprintf("  rows applied:                   %d", ctrs.RowsApplied),
		fmt.Sprintf("  skipped (already promoted):     %d", ctrs.RowsSkippedAlreadyPromoted),
		fmt.Sprintf("  skipped (missing dep):          %d", ctrs.RowsSkippedMissingDep),
		fmt.Sprintf("  invalid rows:                   %d", ctrs.RowsInvalid),
		fmt.Sprintf("DB errors:                        %d", ctrs.DBErrors),
	}
	lines = appendWarnings(lines, ctrs.Warnings, warningLimit)
	if !dryRun && ctrs.RowsApplied > 0 {
		lines = append(lines, "",
			"Note: run the score stage to refresh candidates affected by reject/hold decisions.")
	}
	lines = append(lines, reportBanner)
	return strings.Join(lines, "\n")
}

// BuildLifecycleReport renders the human summary of a lifecycle run.
func BuildLifecycleReport(ctrs *LifecycleCounters, dryRun bool, warningLimit int) string {
	lines := []string{
		reportBanner,
		"Canonical Lifecycle Operation Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
		fmt.Sprintf("  rows read:      %d", ctrs.RowsRead),
		fmt.Sprintf("  rows applied:   %d", ctrs.RowsApplied),
		fmt.Sprintf("  rows invalid:   %d", ctrs.RowsInvalid),
		fmt.Sprintf("  rows skipped:   %d", ctrs.RowsSkipped),
		fmt.Sprintf("DB errors:        %d", ctrs.DBErrors),
	}
	lines = appendWarnings(lines, ctrs.Warnings, warningLimit)
	lines = append(lines, reportBanner)
	return strings.Join(lines, "\n")
}

// BuildLineageReport renders the human summary of a lineage coverage
// run.
func BuildLineageReport(results []CoverageResult, dryRun bool) string {
	lines := []string{
		reportBanner,
		"Lineage Coverage Report",
		fmt.Sprintf("  dry_run: %t", dryRun),
		reportBanner,
	}
	allPassed := true
	for _, r := range results {
		status := "PASS"
		if !r.ThresholdsPassed {
			status = "FAIL"
			allPassed = false
		}
		canonPct := "n/a"
		if r.PctCandidateToCanonical != nil {
			canonPct = fmt.Sprintf("%.2f%%", *r.PctCandidateToCanonical)
		}
		srcPct := "n/a (not measurable)"
		if r.PctSourceToCandidate != nil {
			srcPct = fmt.Sprintf("%.2f%%", *r.PctSourceToCandidate)
		}
		lines = append(lines,
			"",
			fmt.Sprintf("  [%s] %s", status, r.EntityType),
			fmt.Sprintf("    candidates total/promoted: %d / %d (%s)",
				r.CandidatesTotal, r.CandidatesPromoted, canonPct),
			fmt.Sprintf("    threshold canonical: %.1f%%", r.ThresholdCanonicalPct),
			fmt.Sprintf("    source coverage:     %s", srcPct),
			fmt.Sprintf("    threshold source:    %.1f%%", r.ThresholdSourcePct),
			fmt.Sprintf("    unresolved deps:     %d", r.UnresolvedCriticalDeps),
		)
		for _, note := range r.Notes {
			lines = append(lines, "    note: "+note)
		}
	}
	overall := "PASS"
	if !allPassed {
		overall = "FAIL"
	}
	lines = append(lines, "", reportBanner, "  Overall: "+overall, reportBanner)
	return strings.Join(lines, "\n")
}
