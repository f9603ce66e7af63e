package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("boat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity type")
}

func TestParseKinds(t *testing.T) {
	t.Run("all expands in dependency order", func(t *testing.T) {
		kinds, err := ParseKinds("all")
		require.NoError(t, err)
		assert.Equal(t, AllKinds, kinds)
	})

	t.Run("empty behaves like all", func(t *testing.T) {
		kinds, err := ParseKinds("")
		require.NoError(t, err)
		assert.Equal(t, AllKinds, kinds)
	})

	t.Run("single kind", func(t *testing.T) {
		kinds, err := ParseKinds("yacht")
		require.NoError(t, err)
		assert.Equal(t, []Kind{KindYacht}, kinds)
	})

	t.Run("unknown kind errors", func(t *testing.T) {
		_, err := ParseKinds("trophy")
		assert.Error(t, err)
	})
}

func TestDependencyOrder(t *testing.T) {
	// Registrations reference events, yachts, and participants, so they
	// must promote last.
	assert.Equal(t, KindRegistration, AllKinds[len(AllKinds)-1])
	assert.Equal(t, []Kind{KindClub, KindEvent, KindYacht, KindParticipant, KindRegistration}, AllKinds)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "candidate_participant", KindParticipant.CandidateTable())
	assert.Equal(t, "canonical_registration", KindRegistration.CanonicalTable())
}

func TestProvenanceAttrs(t *testing.T) {
	for _, k := range AllKinds {
		assert.NotEmpty(t, k.ProvenanceAttrs(), "kind %s", k)
	}
	assert.Equal(t,
		[]string{"display_name", "normalized_name", "date_of_birth", "best_email", "best_phone"},
		KindParticipant.ProvenanceAttrs())
}

func TestPromoteColumns(t *testing.T) {
	for _, k := range AllKinds {
		assert.NotEmpty(t, k.PromoteColumns(), "kind %s", k)
	}
	assert.Equal(t,
		[]string{"registration_external_id", "entry_status", "registered_at"},
		KindRegistration.PromoteColumns())
}

func TestCloneColumns(t *testing.T) {
	for _, k := range AllKinds {
		assert.Contains(t, k.CloneColumns(), "canonical_confidence_score", "kind %s", k)
	}
	// Split must carry the name parts that provenance does not track.
	assert.Contains(t, KindParticipant.CloneColumns(), "first_name")
	assert.Contains(t, KindRegistration.CloneColumns(), "canonical_event_id")
}

func TestParseState(t *testing.T) {
	for _, s := range []State{StateAutoPromote, StateReview, StateHold, StateReject} {
		got, err := ParseState(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseState("pending")
	assert.Error(t, err)
}

func TestParseDecisionAction(t *testing.T) {
	for _, a := range []DecisionAction{
		ActionPromote, ActionReject, ActionHold,
		ActionMerge, ActionDemote, ActionUnlink, ActionSplit,
	} {
		got, err := ParseDecisionAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseDecisionAction("approve")
	assert.Error(t, err)
}
