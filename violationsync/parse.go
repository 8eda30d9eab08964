package violationsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
)

var ErrMissingActivityNr = errors.New("violation record has no activity_nr")

// FlexString accepts a JSON string, number, bool or null. The DOL API is not
// consistent about quoting numeric columns.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(data)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// RawViolation is one record of the DOL violation dataset as returned on the wire.
type RawViolation struct {
	ActivityNr     FlexString `json:"activity_nr"`
	CitationID     FlexString `json:"citation_id"`
	DeleteFlag     FlexString `json:"delete_flag"`
	Standard       FlexString `json:"standard"`
	ViolType       FlexString `json:"viol_type"`
	IssuanceDate   FlexString `json:"issuance_date"`
	AbateDate      FlexString `json:"abate_date"`
	AbateComplete  FlexString `json:"abate_complete"`
	CurrentPenalty FlexString `json:"current_penalty"`
	InitialPenalty FlexString `json:"initial_penalty"`
	ContestDate    FlexString `json:"contest_date"`
	FinalOrderDate FlexString `json:"final_order_date"`
	NrInstances    FlexString `json:"nr_instances"`
	NrExposed      FlexString `json:"nr_exposed"`
	Rec            FlexString `json:"rec"`
	Gravity        FlexString `json:"gravity"`
	Emphasis       FlexString `json:"emphasis"`
	Hazcat         FlexString `json:"hazcat"`
	LoadDt         FlexString `json:"load_dt"`
}

// ParseViolation converts a wire record into a storable row with a normalized
// citation id. A blank citation id normalizes to "0".
func ParseViolation(raw RawViolation) (models.Violation, error) {
	activityNr := strings.TrimSpace(raw.ActivityNr.String())
	if activityNr == "" {
		return models.Violation{}, ErrMissingActivityNr
	}
	citationID := strings.TrimSpace(raw.CitationID.String())

	return models.Violation{
		ActivityNr:     activityNr,
		CitationID:     NormalizeCitationID(citationID),
		DeleteFlag:     CleanString(raw.DeleteFlag.String()),
		Standard:       CleanString(raw.Standard.String()),
		ViolType:       CleanString(raw.ViolType.String()),
		IssuanceDate:   ParseDate(raw.IssuanceDate.String()),
		AbateDate:      ParseDate(raw.AbateDate.String()),
		AbateComplete:  CleanString(raw.AbateComplete.String()),
		CurrentPenalty: ParseDecimal(raw.CurrentPenalty.String()),
		InitialPenalty: ParseDecimal(raw.InitialPenalty.String()),
		ContestDate:    ParseDate(raw.ContestDate.String()),
		FinalOrderDate: ParseDate(raw.FinalOrderDate.String()),
		NrInstances:    ParseInt(raw.NrInstances.String()),
		NrExposed:      ParseInt(raw.NrExposed.String()),
		Rec:            CleanString(raw.Rec.String()),
		Gravity:        CleanString(raw.Gravity.String()),
		Emphasis:       CleanString(raw.Emphasis.String()),
		Hazcat:         CleanString(raw.Hazcat.String()),
		LoadDt:         ParseTimestamp(raw.LoadDt.String()),
	}, nil
}

// ParseDate accepts "YYYY-MM-DD" (optionally followed by a time part) or
// "MM/DD/YYYY". Anything else is nil.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if len(value) < 10 {
		return nil
	}
	head := value[:10]
	for _, layout := range []string{"2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, head); err == nil {
			return &t
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses load_dt style values, falling back to ParseDate.
// Results are UTC truncated to the second.
func ParseTimestamp(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC().Truncate(time.Second)
			return &t
		}
	}
	return ParseDate(value)
}

// ParseDecimal returns the amount rounded to cents; blank or unparsable input is zero.
func ParseDecimal(value string) decimal.Decimal {
	d, err := utils.ParseDecimal(value)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// ParseInt returns nil for blank or unparsable input. Integral floats ("3.0") are accepted.
func ParseInt(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	n := int(f)
	return &n
}

// CleanString trims value and returns nil when nothing is left.
func CleanString(value string) *string {
	return utils.NilIfEmpty(strings.TrimSpace(value))
}
