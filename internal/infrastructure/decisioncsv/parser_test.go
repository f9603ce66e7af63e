package decisioncsv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decisionSheet = "candidate_entity_type,candidate_entity_id,action,actor\n" +
	"participant,9f1b2c3d-0000-0000-0000-000000000001,promote,reviewer@club.org\n" +
	"yacht,9f1b2c3d-0000-0000-0000-000000000002,hold,reviewer@club.org\n"

func TestNewParser(t *testing.T) {
	t.Run("valid UTF-8 sheet", func(t *testing.T) {
		p, err := NewParser(strings.NewReader(decisionSheet))
		require.NoError(t, err)
		require.NotNil(t, p)
	})

	t.Run("BOM is stripped from first header", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("\xEF\xBB\xBF" + decisionSheet))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())
		assert.Equal(t, "candidate_entity_type", p.Headers()[0])
	})

	t.Run("empty file rejected", func(t *testing.T) {
		_, err := NewParser(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("non UTF-8 content rejected", func(t *testing.T) {
		_, err := NewParser(strings.NewReader("action\n\xff\xfe\xfd\n"))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})
}

func TestValidateHeaders(t *testing.T) {
	p, err := ParseFromBytes([]byte(decisionSheet))
	require.NoError(t, err)
	require.NoError(t, p.ParseHeader())

	assert.Empty(t, p.ValidateHeaders([]string{"candidate_entity_type", "action", "actor"}))
	assert.Equal(t, []string{"reason_code"}, p.ValidateHeaders([]string{"action", "reason_code"}))
}

func TestReadAllRows(t *testing.T) {
	t.Run("values are trimmed", func(t *testing.T) {
		sheet := "action,actor\n promote , reviewer@club.org \n"
		p, err := ParseFromBytes([]byte(sheet))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		rows, err := p.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "promote", rows[0].Get("action"))
		assert.Equal(t, "reviewer@club.org", rows[0].Get("actor"))
	})

	t.Run("fully empty rows skipped", func(t *testing.T) {
		sheet := "action,actor\npromote,alice\n,\n\nhold,bob\n"
		p, err := ParseFromBytes([]byte(sheet))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		rows, err := p.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "hold", rows[1].Get("action"))
	})

	t.Run("line numbers count from header", func(t *testing.T) {
		p, err := ParseFromBytes([]byte(decisionSheet))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		rows, err := p.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, 2, rows[0].LineNumber)
		assert.Equal(t, 3, rows[1].LineNumber)
	})

	t.Run("short rows fill missing columns empty", func(t *testing.T) {
		sheet := "action,actor,reason_code\npromote,alice\n"
		p, err := ParseFromBytes([]byte(sheet))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		rows, err := p.ReadAllRows()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "", rows[0].Get("reason_code"))
		assert.Equal(t, "manual_review", rows[0].GetOrDefault("reason_code", "manual_review"))
	})
}

func TestParseHeaderMissing(t *testing.T) {
	// A file of only blank lines passes encoding checks but has no header.
	p, err := ParseFromBytes([]byte("\n\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, p.ParseHeader(), ErrMissingHeader)
}
