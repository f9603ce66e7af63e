package resolution

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/regatta/etl/internal/infrastructure/persistence/models"
)

// setupPipelineDB opens an in-memory SQLite database with every table
// the pipeline stages touch.
func setupPipelineDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.YachtClub{},
		&models.EventSeries{},
		&models.EventInstance{},
		&models.Yacht{},
		&models.Participant{},
		&models.ParticipantContactPoint{},
		&models.ParticipantAddress{},
		&models.ParticipantRelatedContact{},
		&models.EventEntry{},
		&models.EventEntryParticipant{},
		&models.JotformWaiverSubmission{},
		&models.MailchimpAudienceRow{},
		&models.AirtableCopyRow{},
		&models.YachtScoringRawRow{},
		&models.CandidateClub{},
		&models.CandidateEvent{},
		&models.CandidateYacht{},
		&models.CandidateParticipant{},
		&models.CandidateRegistration{},
		&models.CandidateParticipantContact{},
		&models.CandidateParticipantAddress{},
		&models.CandidateParticipantRole{},
		&models.CandidateSourceLink{},
		&models.CanonicalClub{},
		&models.CanonicalEvent{},
		&models.CanonicalYacht{},
		&models.CanonicalParticipant{},
		&models.CanonicalRegistration{},
		&models.CandidateCanonicalLink{},
		&models.CanonicalAttributeProvenance{},
		&models.NextBestAction{},
		&models.ResolutionRuleSet{},
		&models.ResolutionScoreRun{},
		&models.ResolutionManualActionLog{},
		&models.LineageCoverageSnapshot{},
	)
	require.NoError(t, err)
	return db
}

// rulesFixtureDir points at the shipped rule-set files so scoring tests
// exercise the same thresholds and weights production runs use.
func rulesFixtureDir() string {
	return filepath.Join("..", "..", "..", "config", "resolution_rules")
}

func writeSheet(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func timePtr(ts time.Time) *time.Time { return &ts }

func datePtr(year int, month time.Month, day int) *time.Time {
	ts := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &ts
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
