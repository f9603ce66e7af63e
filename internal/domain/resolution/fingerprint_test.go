package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipantFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := ParticipantFingerprint("jane doe", "jane@example.com")
		b := ParticipantFingerprint("jane doe", "jane@example.com")
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("email case does not change identity", func(t *testing.T) {
		a := ParticipantFingerprint("jane doe", "Jane@Example.COM")
		b := ParticipantFingerprint("jane doe", "jane@example.com")
		assert.Equal(t, a, b)
	})

	t.Run("different name yields different key", func(t *testing.T) {
		a := ParticipantFingerprint("jane doe", "jane@example.com")
		b := ParticipantFingerprint("john doe", "jane@example.com")
		assert.NotEqual(t, a, b)
	})
}

func TestYachtFingerprint(t *testing.T) {
	a := YachtFingerprint("wind-dancer", "usa-1234")
	b := YachtFingerprint("wind-dancer", "usa-1234")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, YachtFingerprint("wind-dancer", "usa-9999"))
}

func TestClubFingerprint(t *testing.T) {
	assert.Equal(t, ClubFingerprint("bay-yacht-club"), ClubFingerprint("bay-yacht-club"))
	assert.NotEqual(t, ClubFingerprint("bay-yacht-club"), ClubFingerprint("cove-yacht-club"))
}

func TestEventFingerprint(t *testing.T) {
	year := 2025

	t.Run("nil season year hashes as empty", func(t *testing.T) {
		a := EventFingerprint("spring-regatta", nil, "ev-1")
		b := EventFingerprint("spring-regatta", nil, "ev-1")
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, EventFingerprint("spring-regatta", &year, "ev-1"))
	})

	t.Run("season year is part of identity", func(t *testing.T) {
		other := 2024
		assert.NotEqual(t,
			EventFingerprint("spring-regatta", &year, "ev-1"),
			EventFingerprint("spring-regatta", &other, "ev-1"))
	})
}

func TestRegistrationFingerprint(t *testing.T) {
	a := RegistrationFingerprint("event-uuid", "reg-77", "yacht-uuid")
	assert.Equal(t, a, RegistrationFingerprint("event-uuid", "reg-77", "yacht-uuid"))
	assert.NotEqual(t, a, RegistrationFingerprint("event-uuid", "reg-78", "yacht-uuid"))
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Part boundaries must not be ambiguous: ("ab", "c") and ("a", "bc")
	// are different identities.
	assert.NotEqual(t, ClubFingerprint("ab"), YachtFingerprint("a", "b"))
	assert.NotEqual(t, YachtFingerprint("ab", "c"), YachtFingerprint("a", "bc"))
}
