// Package normalize implements the canonical text normalization rules used
// for candidate identity. All functions treat the empty string as an absent
// value and return the empty string when nothing usable remains.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

const (
	sentinelTS = "0000-00-00 00:00:00"
	tsLayout   = "2006-01-02 15:04:05"
	dateLayout = "Jan 2, 2006"
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	nonDigitRe = regexp.MustCompile(`\D`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Trim strips leading/trailing whitespace; an all-whitespace value becomes empty.
func Trim(value string) string {
	return strings.TrimSpace(value)
}

// Space collapses internal runs of whitespace to single spaces, then trims.
func Space(value string) string {
	v := Trim(value)
	if v == "" {
		return ""
	}
	return spaceRe.ReplaceAllString(v, " ")
}

// Email lowercases and trims an email address.
func Email(value string) string {
	return strings.ToLower(Trim(value))
}

// Phone returns an E.164-style phone number or empty.
//
// Keeps digits only. 10 digits gets a +1 prefix, 11 digits starting with 1
// gets a bare + prefix, any other run of 7 or more digits is kept with a +
// prefix, and fewer than 7 digits is treated as a data error.
func Phone(value string) string {
	v := Trim(value)
	if v == "" {
		return ""
	}
	digits := nonDigitRe.ReplaceAllString(v, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case len(digits) >= 7:
		return "+" + digits
	}
	return ""
}

// stripMarks decomposes to NFKD and drops combining marks.
func stripMarks(v string) string {
	decomposed := norm.NFKD.String(v)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name lowercases, removes punctuation except spaces, and collapses spaces.
//
// Used for participant matching. Club, event, and yacht normalized names use
// Slug instead.
func Name(value string) string {
	v := Trim(value)
	if v == "" {
		return ""
	}
	v = strings.ToLower(stripMarks(v))

	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return Space(b.String())
}

// Slug returns lowercase alphanumerics with '-' separators.
//
// Used for the normalized_name columns on clubs, events, and yachts.
func Slug(value string) string {
	v := Trim(value)
	if v == "" {
		return ""
	}
	v = strings.ToLower(stripMarks(v))
	v = slugRe.ReplaceAllString(v, "-")
	return strings.Trim(v, "-")
}

// ParseTS parses 'YYYY-MM-DD HH:MM:SS'. The zero sentinel timestamp and
// unparseable values return false.
func ParseTS(value string) (time.Time, bool) {
	v := Trim(value)
	if v == "" || v == sentinelTS {
		return time.Time{}, false
	}
	ts, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ParseDateFromTS returns the date portion of a parsed timestamp.
func ParseDateFromTS(value string) (time.Time, bool) {
	ts, ok := ParseTS(value)
	if !ok {
		return time.Time{}, false
	}
	return ts.Truncate(24 * time.Hour), true
}

// ParseDate parses dates like 'Jul 23, 2025'.
func ParseDate(value string) (time.Time, bool) {
	v := Trim(value)
	if v == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// ParseNumeric parses a decimal number from a string.
func ParseNumeric(value string) (decimal.Decimal, bool) {
	v := Trim(value)
	if v == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// NameParts splits a full name into (first, last).
//
// "Last, First Middle" yields ("First Middle", "Last"), "First Last" yields
// ("First", "Last"), and a single token yields (token, "").
func NameParts(fullName string) (string, string) {
	v := Space(fullName)
	if v == "" {
		return "", ""
	}
	if idx := strings.Index(v, ","); idx >= 0 {
		last := Trim(v[:idx])
		first := Trim(v[idx+1:])
		return first, last
	}
	tokens := strings.Fields(v)
	if len(tokens) == 1 {
		return tokens[0], ""
	}
	return strings.Join(tokens[:len(tokens)-1], " "), tokens[len(tokens)-1]
}
