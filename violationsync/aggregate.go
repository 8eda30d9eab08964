package violationsync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tsgsafety/osha_tracker/models"
	"gorm.io/gorm"
)

// Stamp is the check bookkeeping written together with the totals.
// A nil CheckedAt leaves last_violation_check_at and the counter alone.
type Stamp struct {
	CheckedAt *time.Time
	NewCount  int
}

type AggregateTarget struct {
	ActivityNr string
	Stamp      Stamp
}

type AggregateFailure struct {
	ActivityNr string
	Err        error
}

// Totals are the recomputed penalty sums of one inspection.
type Totals struct {
	Current decimal.Decimal
	Initial decimal.Decimal
}

// Aggregator is the only writer of the inspection penalty totals.
type Aggregator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAggregator(db *gorm.DB, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{db: db, now: now}
}

type penaltySums struct {
	SumCurrent decimal.Decimal
	SumInitial decimal.Decimal
}

// Recompute sums every non-deleted violation of activityNr and writes the
// totals, plus the stamp, in one transaction. Totals are rebuilt from the
// full child set each time, so repeating it never double counts.
func (a *Aggregator) Recompute(ctx context.Context, activityNr string, stamp Stamp) (Totals, error) {
	var totals Totals
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sums penaltySums
		if err := tx.Model(&models.Violation{}).
			Select("COALESCE(SUM(current_penalty), 0) AS sum_current, COALESCE(SUM(initial_penalty), 0) AS sum_initial").
			Where("activity_nr = ?", activityNr).
			Where(models.NonDeletedViolation).
			Scan(&sums).Error; err != nil {
			return fmt.Errorf("sum penalties: %w", err)
		}
		totals = Totals{Current: sums.SumCurrent.Round(2), Initial: sums.SumInitial.Round(2)}

		updates := map[string]interface{}{
			"total_current_penalty": totals.Current,
			"total_initial_penalty": totals.Initial,
		}
		if stamp.CheckedAt != nil {
			at := stamp.CheckedAt.UTC()
			// last_violation_check_at never moves backwards.
			updates["last_violation_check_at"] = gorm.Expr(
				"CASE WHEN last_violation_check_at IS NULL OR last_violation_check_at < ? THEN ? ELSE last_violation_check_at END", at, at)
			updates["violation_check_count"] = gorm.Expr("violation_check_count + 1")
		}
		if stamp.NewCount > 0 {
			detectedAt := a.now().UTC()
			if stamp.CheckedAt != nil {
				detectedAt = stamp.CheckedAt.UTC()
			}
			updates["new_violations_detected"] = true
			updates["new_violations_count"] = stamp.NewCount
			updates["new_violations_date"] = detectedAt
		}

		result := tx.Model(&models.Inspection{}).Where("activity_nr = ?", activityNr).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update inspection totals: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInspectionNotFound
		}
		return nil
	})
	if err != nil {
		return Totals{}, fmt.Errorf("recompute %s: %w", activityNr, err)
	}
	return totals, nil
}

// RecomputeAll recomputes each target independently. A failure is reported
// and the remaining targets still run.
func (a *Aggregator) RecomputeAll(ctx context.Context, targets []AggregateTarget) []AggregateFailure {
	var failures []AggregateFailure
	for _, t := range targets {
		if _, err := a.Recompute(ctx, t.ActivityNr, t.Stamp); err != nil {
			failures = append(failures, AggregateFailure{ActivityNr: t.ActivityNr, Err: err})
		}
	}
	return failures
}
