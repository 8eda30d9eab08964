package models

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"gorm.io/gorm"
)

// PenaltyDrift is a parent whose stored totals disagree with the sum of its
// non-deleted children.
type PenaltyDrift struct {
	ActivityNr    string          `json:"activity_nr"`
	StoredCurrent decimal.Decimal `json:"stored_current"`
	ActualCurrent decimal.Decimal `json:"actual_current"`
	StoredInitial decimal.Decimal `json:"stored_initial"`
	ActualInitial decimal.Decimal `json:"actual_initial"`
}

// FindPenaltyDrift lists at most limit drifted parents, ordered by activity number.
func FindPenaltyDrift(ctx context.Context, db *gorm.DB, limit int) ([]PenaltyDrift, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []PenaltyDrift
	err := db.WithContext(ctx).Raw(`
		SELECT
		  i.activity_nr AS activity_nr,
		  i.total_current_penalty AS stored_current,
		  COALESCE(s.sum_current, 0) AS actual_current,
		  i.total_initial_penalty AS stored_initial,
		  COALESCE(s.sum_initial, 0) AS actual_initial
		FROM inspections i
		LEFT JOIN (
		  SELECT activity_nr, SUM(current_penalty) AS sum_current, SUM(initial_penalty) AS sum_initial
		  FROM violations
		  WHERE `+NonDeletedViolation+`
		  GROUP BY activity_nr
		) s ON s.activity_nr = i.activity_nr
		WHERE ROUND(i.total_current_penalty, 2) <> ROUND(COALESCE(s.sum_current, 0), 2)
		   OR ROUND(i.total_initial_penalty, 2) <> ROUND(COALESCE(s.sum_initial, 0), 2)
		ORDER BY i.activity_nr
		LIMIT ?
	`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	if len(rows) > 0 {
		config.GetLogger().WithFields(logrus.Fields{
			"field": "penalty_drift",
			"count": len(rows),
		}).Warn("inspection penalty totals disagree with violation rows")
	}
	return rows, nil
}
