package resolution

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const participantRuleYAML = `entity_type: participant
source_system: "regattaman|mailchimp"
version: "v1.0.0"
thresholds:
  auto_promote: 0.95
  review: 0.75
  hold: 0.50
feature_weights:
  email_exact: 0.55
  phone_exact: 0.20
  dob_exact: 0.15
  normalized_name_exact: 0.10
hard_blocks:
  - conflicting_dob
  - conflicting_high_confidence_email
source_precedence:
  - jotform_waiver_csv
  - regattaman_csv_export
survivorship_rules:
  date_of_birth: highest_precedence_non_null
missing_attribute_penalties:
  missing_email: 0.10
  missing_phone: 0.05
`

func TestParseRuleSet(t *testing.T) {
	t.Run("valid rule set parses", func(t *testing.T) {
		rs, err := ParseRuleSet([]byte(participantRuleYAML))
		require.NoError(t, err)

		assert.Equal(t, KindParticipant, rs.EntityType)
		assert.Equal(t, "regattaman|mailchimp", rs.SourceSystem)
		assert.Equal(t, "v1.0.0", rs.Version)
		assert.Len(t, rs.FeatureWeights, 4)
		assert.True(t, rs.FeatureWeights["email_exact"].Equal(decimal.NewFromFloat(0.55)))
		assert.Equal(t, []string{"conflicting_dob", "conflicting_high_confidence_email"}, rs.HardBlocks)
		assert.Equal(t, "highest_precedence_non_null", rs.SurvivorshipRules["date_of_birth"])
		assert.NotEmpty(t, rs.YAMLHash)
		assert.Equal(t, participantRuleYAML, rs.RawYAML)
	})

	t.Run("hash is stable across identical content", func(t *testing.T) {
		a, err := ParseRuleSet([]byte(participantRuleYAML))
		require.NoError(t, err)
		b, err := ParseRuleSet([]byte(participantRuleYAML))
		require.NoError(t, err)
		assert.Equal(t, a.YAMLHash, b.YAMLHash)
	})

	t.Run("invalid YAML rejected", func(t *testing.T) {
		_, err := ParseRuleSet([]byte("entity_type: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("missing required keys reported together", func(t *testing.T) {
		_, err := ParseRuleSet([]byte("entity_type: participant\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required YAML keys")
		assert.Contains(t, err.Error(), "feature_weights")
		assert.Contains(t, err.Error(), "thresholds")
	})

	t.Run("unknown entity type rejected", func(t *testing.T) {
		yaml := replaceLine(participantRuleYAML, "entity_type: participant", "entity_type: trophy")
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid entity_type")
	})

	t.Run("threshold out of range rejected", func(t *testing.T) {
		yaml := replaceLine(participantRuleYAML, "  auto_promote: 0.95", "  auto_promote: 1.5")
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be in [0.0, 1.0]")
	})

	t.Run("threshold ordering enforced", func(t *testing.T) {
		yaml := replaceLine(participantRuleYAML, "  hold: 0.50", "  hold: 0.80")
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'hold' threshold")
	})

	t.Run("review above auto_promote rejected", func(t *testing.T) {
		yaml := replaceLine(participantRuleYAML, "  review: 0.75", "  review: 0.99")
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'review' threshold")
	})

	t.Run("negative feature weight rejected", func(t *testing.T) {
		yaml := replaceLine(participantRuleYAML, "  email_exact: 0.55", "  email_exact: -0.1")
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be >= 0")
	})

	t.Run("empty feature weights rejected", func(t *testing.T) {
		yaml := `entity_type: participant
source_system: "x"
version: "v1"
thresholds:
  auto_promote: 0.9
  review: 0.7
  hold: 0.5
feature_weights: {}
hard_blocks: []
source_precedence: []
survivorship_rules: {}
missing_attribute_penalties: {}
`
		_, err := ParseRuleSet([]byte(yaml))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "feature_weights")
	})
}

func TestLoadRuleSet(t *testing.T) {
	t.Run("loads from file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "participant.yml")
		require.NoError(t, os.WriteFile(path, []byte(participantRuleYAML), 0o644))

		rs, err := LoadRuleSet(path)
		require.NoError(t, err)
		assert.Equal(t, KindParticipant, rs.EntityType)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadRuleSet(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})
}

func TestShippedRuleFiles(t *testing.T) {
	// Every rule file shipped in config/resolution_rules must parse and
	// must declare the entity type its filename promises.
	dir := filepath.Join("..", "..", "..", "config", "resolution_rules")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		name := e.Name()
		t.Run(name, func(t *testing.T) {
			rs, err := LoadRuleSet(filepath.Join(dir, name))
			require.NoError(t, err)

			want := name[:len(name)-len(filepath.Ext(name))]
			assert.Equal(t, want, rs.EntityType.String())
		})
	}
}

func TestFeatureNames(t *testing.T) {
	rs, err := ParseRuleSet([]byte(participantRuleYAML))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"dob_exact", "email_exact", "normalized_name_exact", "phone_exact"},
		rs.FeatureNames())
}

func TestIsHardBlock(t *testing.T) {
	rs, err := ParseRuleSet([]byte(participantRuleYAML))
	require.NoError(t, err)

	assert.True(t, rs.IsHardBlock("conflicting_dob"))
	assert.False(t, rs.IsHardBlock("something_else"))
}

func TestStateForScore(t *testing.T) {
	rs, err := ParseRuleSet([]byte(participantRuleYAML))
	require.NoError(t, err)

	cases := []struct {
		score float64
		want  State
	}{
		{1.00, StateAutoPromote},
		{0.95, StateAutoPromote},
		{0.94, StateReview},
		{0.75, StateReview},
		{0.74, StateHold},
		{0.50, StateHold},
		{0.49, StateReject},
		{0.00, StateReject},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rs.StateForScore(decimal.NewFromFloat(tc.score)),
			"score %v", tc.score)
	}
}

func replaceLine(yaml, old, new string) string {
	return strings.Replace(yaml, old, new, 1)
}
