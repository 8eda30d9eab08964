package violationsync

import "strings"

// NormalizeCitationID strips leading zeros so "01001" and "1001" map to the same
// key. An id made only of zeros (or an empty one) normalizes to "0".
//
// Applied both to fetched records and to stored rows when building lookup keys,
// which is what keeps re-fetches from creating duplicates.
func NormalizeCitationID(id string) string {
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// violationKey is the natural key of a child record.
type violationKey struct {
	ActivityNr string
	CitationID string
}

func newViolationKey(activityNr, citationID string) violationKey {
	return violationKey{ActivityNr: activityNr, CitationID: NormalizeCitationID(citationID)}
}
