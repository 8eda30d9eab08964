package violationsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCitationID(t *testing.T) {
	cases := map[string]string{
		"01001":  "1001",
		"1001":   "1001",
		"00000":  "0",
		"0":      "0",
		"":       "0",
		"02001A": "2001A",
		"100":    "100",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCitationID(in), "input %q", in)
	}
}

func TestNormalizeCitationIDIsIdempotent(t *testing.T) {
	for _, in := range []string{"01001", "00000", "", "0010", "ABC", "000A0"} {
		once := NormalizeCitationID(in)
		assert.Equal(t, once, NormalizeCitationID(once), "input %q", in)
	}
}

func TestViolationKeyNormalizesCitation(t *testing.T) {
	assert.Equal(t, newViolationKey("123", "1001"), newViolationKey("123", "01001"))
	assert.NotEqual(t, newViolationKey("123", "1001"), newViolationKey("124", "1001"))
}
