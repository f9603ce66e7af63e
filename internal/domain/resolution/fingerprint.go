package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprints are deterministic identity keys for candidate rows.
// Re-ingesting the same source data must land on the same candidate, so
// each fingerprint hashes only the normalized identity attributes of its
// kind. Nil or absent parts hash as the empty string.

func fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// ParticipantFingerprint keys a participant by normalized name and
// lowercased email.
func ParticipantFingerprint(normalizedName, email string) string {
	return fingerprint(normalizedName, strings.ToLower(email))
}

// YachtFingerprint keys a yacht by normalized name and sail number.
func YachtFingerprint(normalizedName, normalizedSail string) string {
	return fingerprint(normalizedName, normalizedSail)
}

// ClubFingerprint keys a club by normalized name alone.
func ClubFingerprint(normalizedName string) string {
	return fingerprint(normalizedName)
}

// EventFingerprint keys an event by normalized name, season year, and
// the upstream external id.
func EventFingerprint(normalizedName string, seasonYear *int, externalID string) string {
	year := ""
	if seasonYear != nil {
		year = strconv.Itoa(*seasonYear)
	}
	return fingerprint(normalizedName, year, externalID)
}

// RegistrationFingerprint keys a registration by its candidate event,
// the upstream registration id, and its candidate yacht.
func RegistrationFingerprint(candidateEventID, externalID, candidateYachtID string) string {
	return fingerprint(candidateEventID, externalID, candidateYachtID)
}
