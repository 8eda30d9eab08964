package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NonDeletedViolation is the predicate for children that count toward penalty totals.
const NonDeletedViolation = "(delete_flag IS NULL OR delete_flag = '')"

// Violation is one citation on an inspection, keyed by (activity_nr, citation_id).
// CitationID is always stored in normalized form.
type Violation struct {
	ID         uint   `gorm:"primary_key" json:"id"`
	ActivityNr string `gorm:"uniqueIndex:uq_activity_citation,priority:1;size:20;not null" json:"activity_nr"`
	CitationID string `gorm:"uniqueIndex:uq_activity_citation,priority:2;size:20;not null" json:"citation_id"`

	DeleteFlag     *string         `gorm:"size:5" json:"delete_flag"`
	Standard       *string         `gorm:"size:100" json:"standard"`
	ViolType       *string         `gorm:"size:10" json:"viol_type"`
	IssuanceDate   *time.Time      `gorm:"type:date" json:"issuance_date"`
	AbateDate      *time.Time      `gorm:"type:date" json:"abate_date"`
	AbateComplete  *string         `gorm:"size:10" json:"abate_complete"`
	CurrentPenalty decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"current_penalty"`
	InitialPenalty decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"initial_penalty"`
	ContestDate    *time.Time      `gorm:"type:date" json:"contest_date"`
	FinalOrderDate *time.Time      `gorm:"type:date" json:"final_order_date"`
	NrInstances    *int            `json:"nr_instances"`
	NrExposed      *int            `json:"nr_exposed"`
	Rec            *string         `gorm:"size:10" json:"rec"`
	Gravity        *string         `gorm:"size:10" json:"gravity"`
	Emphasis       *string         `gorm:"size:10" json:"emphasis"`
	Hazcat         *string         `gorm:"size:20" json:"hazcat"`
	LoadDt         *time.Time      `json:"load_dt"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ViolationMutableColumns are overwritten on conflict. The natural key and
// created_at never change after insert.
var ViolationMutableColumns = []string{
	"delete_flag", "standard", "viol_type", "issuance_date", "abate_date", "abate_complete",
	"current_penalty", "initial_penalty", "contest_date", "final_order_date",
	"nr_instances", "nr_exposed", "rec", "gravity", "emphasis", "hazcat", "load_dt",
	"updated_at",
}

// IsDeleted reports whether the source flagged the citation as deleted.
func (v Violation) IsDeleted() bool {
	return v.DeleteFlag != nil && *v.DeleteFlag != ""
}
