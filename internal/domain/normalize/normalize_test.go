package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimAndSpace(t *testing.T) {
	assert.Equal(t, "hello", Trim("  hello  "))
	assert.Equal(t, "", Trim("   "))
	assert.Equal(t, "a b c", Space("  a   b\t c "))
	assert.Equal(t, "", Space(""))
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", Email("  Jane@Example.COM "))
	assert.Equal(t, "", Email("   "))
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"555.123.4567", "+15551234567"},
		{"1-555-123-4567", "+15551234567"},
		{"+44 20 7946 0958", "+442079460958"},
		{"123-4567", "+1234567"},
		{"12345", ""},
		{"", ""},
		{"ext.", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Phone(tc.in), "input %q", tc.in)
	}
}

func TestName(t *testing.T) {
	assert.Equal(t, "jane doe", Name("  Jane   DOE "))
	assert.Equal(t, "jose garcia", Name("José García"))
	assert.Equal(t, "oneill patrick", Name("O'Neill, Patrick!"))
	assert.Equal(t, "", Name("  "))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "bay-yacht-club", Slug("Bay Yacht Club"))
	assert.Equal(t, "spring-regatta-2025", Slug("  Spring Regatta (2025)!"))
	assert.Equal(t, "cafe-du-port", Slug("Café du Port"))
	assert.Equal(t, "", Slug("***"))
}

func TestParseTS(t *testing.T) {
	t.Run("valid timestamp", func(t *testing.T) {
		ts, ok := ParseTS("2025-07-23 14:30:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 7, 23, 14, 30, 0, 0, time.UTC), ts)
	})

	t.Run("zero sentinel is absent", func(t *testing.T) {
		_, ok := ParseTS("0000-00-00 00:00:00")
		assert.False(t, ok)
	})

	t.Run("garbage is absent", func(t *testing.T) {
		_, ok := ParseTS("not a time")
		assert.False(t, ok)
	})
}

func TestParseDateFromTS(t *testing.T) {
	d, ok := ParseDateFromTS("2025-07-23 14:30:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 23, 0, 0, 0, 0, time.UTC), d)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("Jul 23, 2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 23, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDate("23/07/2025")
	assert.False(t, ok)
}

func TestParseNumeric(t *testing.T) {
	d, ok := ParseNumeric(" 36.5 ")
	require.True(t, ok)
	assert.Equal(t, "36.5", d.String())

	_, ok = ParseNumeric("abc")
	assert.False(t, ok)
	_, ok = ParseNumeric("")
	assert.False(t, ok)
}

func TestNameParts(t *testing.T) {
	cases := []struct {
		in    string
		first string
		last  string
	}{
		{"Doe, Jane", "Jane", "Doe"},
		{"Doe, Jane Marie", "Jane Marie", "Doe"},
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Marie Doe", "Jane Marie", "Doe"},
		{"Cher", "Cher", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		first, last := NameParts(tc.in)
		assert.Equal(t, tc.first, first, "input %q", tc.in)
		assert.Equal(t, tc.last, last, "input %q", tc.in)
	}
}
