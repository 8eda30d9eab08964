package violationsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexStringAcceptsMixedJSON(t *testing.T) {
	var raw RawViolation
	err := json.Unmarshal([]byte(`{
		"activity_nr": 1234567,
		"citation_id": "01001",
		"current_penalty": 1250.5,
		"initial_penalty": "2500",
		"nr_exposed": null,
		"nr_instances": "3.0",
		"delete_flag": ""
	}`), &raw)
	require.NoError(t, err)

	assert.Equal(t, "1234567", raw.ActivityNr.String())
	assert.Equal(t, "01001", raw.CitationID.String())
	assert.Equal(t, "1250.5", raw.CurrentPenalty.String())
	assert.Equal(t, "", raw.NrExposed.String())
}

func TestParseViolation(t *testing.T) {
	raw := RawViolation{
		ActivityNr:     " 1234567 ",
		CitationID:     "01001",
		DeleteFlag:     " ",
		Standard:       "19260501 B01",
		ViolType:       "S",
		IssuanceDate:   "2026-06-01T00:00:00",
		AbateDate:      "06/15/2026",
		CurrentPenalty: "1250.50",
		InitialPenalty: "not-a-number",
		NrInstances:    "3.0",
		NrExposed:      "abc",
		Gravity:        "10",
		LoadDt:         "2026-06-02T04:05:06.789Z",
	}

	v, err := ParseViolation(raw)
	require.NoError(t, err)

	assert.Equal(t, "1234567", v.ActivityNr)
	assert.Equal(t, "1001", v.CitationID)
	assert.Nil(t, v.DeleteFlag)
	assert.Equal(t, "19260501 B01", *v.Standard)
	require.NotNil(t, v.IssuanceDate)
	assert.True(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Equal(*v.IssuanceDate))
	require.NotNil(t, v.AbateDate)
	assert.True(t, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC).Equal(*v.AbateDate))
	assert.True(t, decimal.RequireFromString("1250.5").Equal(v.CurrentPenalty))
	assert.True(t, v.InitialPenalty.IsZero())
	require.NotNil(t, v.NrInstances)
	assert.Equal(t, 3, *v.NrInstances)
	assert.Nil(t, v.NrExposed)
	require.NotNil(t, v.LoadDt)
	assert.True(t, time.Date(2026, 6, 2, 4, 5, 6, 0, time.UTC).Equal(*v.LoadDt))
	assert.Nil(t, v.ContestDate)
}

func TestParseViolationKeys(t *testing.T) {
	_, err := ParseViolation(RawViolation{CitationID: "01001"})
	assert.ErrorIs(t, err, ErrMissingActivityNr)

	v, err := ParseViolation(RawViolation{ActivityNr: "1", CitationID: "000"})
	require.NoError(t, err)
	assert.Equal(t, "0", v.CitationID)

	v, err = ParseViolation(RawViolation{ActivityNr: "1", CitationID: "  "})
	require.NoError(t, err)
	assert.Equal(t, "0", v.CitationID)
}

func TestParseDate(t *testing.T) {
	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("2026-13-01"))
	assert.Nil(t, ParseDate("yesterday"))
	assert.Nil(t, ParseDate("6/1/2026"))

	d := ParseDate("2026-02-03 10:11:12")
	require.NotNil(t, d)
	assert.Equal(t, "2026-02-03", d.Format("2006-01-02"))

	d = ParseDate("02/03/2026")
	require.NotNil(t, d)
	assert.Equal(t, "2026-02-03", d.Format("2006-01-02"))
}

func TestParseDecimal(t *testing.T) {
	assert.True(t, ParseDecimal("").IsZero())
	assert.True(t, ParseDecimal("n/a").IsZero())
	assert.Equal(t, "12.35", ParseDecimal(" 12.345 ").StringFixed(2))
	assert.Equal(t, "7000.00", ParseDecimal("7000").StringFixed(2))
}

func TestParseInt(t *testing.T) {
	assert.Nil(t, ParseInt(""))
	assert.Nil(t, ParseInt("2.5"))
	assert.Nil(t, ParseInt("x"))
	require.NotNil(t, ParseInt("12"))
	assert.Equal(t, 12, *ParseInt("12"))
	assert.Equal(t, 4, *ParseInt("4.0"))
}

func TestCleanString(t *testing.T) {
	assert.Nil(t, CleanString("   "))
	assert.Equal(t, "X", *CleanString(" X "))
}
