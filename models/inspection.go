package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inspection is the parent entity. Rows are created by the inspection import;
// the violation sync only maintains the penalty totals and the check bookkeeping.
type Inspection struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	ActivityNr    string     `gorm:"uniqueIndex;size:20;not null" json:"activity_nr"`
	EstabName     string     `gorm:"size:255" json:"estab_name"`
	SiteCity      string     `gorm:"size:100" json:"site_city"`
	SiteState     string     `gorm:"index;size:2" json:"site_state"`
	OpenDate      *time.Time `gorm:"index;type:date" json:"open_date"`
	CloseCaseDate *time.Time `gorm:"type:date" json:"close_case_date"`

	TotalCurrentPenalty decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_current_penalty"`
	TotalInitialPenalty decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_initial_penalty"`

	LastViolationCheckAt  *time.Time `gorm:"index" json:"last_violation_check_at"`
	ViolationCheckCount   int        `gorm:"not null;default:0" json:"violation_check_count"`
	NewViolationsDetected bool       `gorm:"not null;default:false" json:"new_violations_detected"`
	NewViolationsCount    int        `gorm:"not null;default:0" json:"new_violations_count"`
	NewViolationsDate     *time.Time `json:"new_violations_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
