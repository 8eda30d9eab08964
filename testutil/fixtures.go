package testutil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tsgsafety/osha_tracker/models"
	"gorm.io/gorm"
)

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func Ptr[T any](v T) *T {
	return &v
}

// SeedInspection inserts an inspection in the given state opened on openDate.
func SeedInspection(t testing.TB, db *gorm.DB, activityNr, state string, openDate time.Time) models.Inspection {
	t.Helper()
	insp := models.Inspection{
		ActivityNr:          activityNr,
		EstabName:           "Establishment " + activityNr,
		SiteState:           state,
		OpenDate:            &openDate,
		TotalCurrentPenalty: decimal.Zero,
		TotalInitialPenalty: decimal.Zero,
	}
	if err := db.Create(&insp).Error; err != nil {
		t.Fatalf("seed inspection %s: %v", activityNr, err)
	}
	return insp
}

// SeedViolation inserts a stored child row with the given penalties.
func SeedViolation(t testing.TB, db *gorm.DB, activityNr, citationID string, current, initial int64) models.Violation {
	t.Helper()
	v := models.Violation{
		ActivityNr:     activityNr,
		CitationID:     citationID,
		ViolType:       Ptr("S"),
		CurrentPenalty: decimal.NewFromInt(current),
		InitialPenalty: decimal.NewFromInt(initial),
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("seed violation %s/%s: %v", activityNr, citationID, err)
	}
	return v
}

// LoadInspection reads an inspection back by activity number.
func LoadInspection(t testing.TB, db *gorm.DB, activityNr string) models.Inspection {
	t.Helper()
	var insp models.Inspection
	if err := db.Where("activity_nr = ?", activityNr).Take(&insp).Error; err != nil {
		t.Fatalf("load inspection %s: %v", activityNr, err)
	}
	return insp
}

// CountViolations returns the number of child rows stored for activityNr.
func CountViolations(t testing.TB, db *gorm.DB, activityNr string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Violation{}).Where("activity_nr = ?", activityNr).Count(&n).Error; err != nil {
		t.Fatalf("count violations %s: %v", activityNr, err)
	}
	return n
}
