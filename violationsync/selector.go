package violationsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsgsafety/osha_tracker/models"
	"gorm.io/gorm"
)

// Candidate is a detached identity of an inspection selected for a check.
// No gorm entity escapes the selector, so nothing lazily touches the
// database once the fetch phase starts.
type Candidate struct {
	ActivityNr string
	EstabName  string
}

type TargetedCriteria struct {
	DaysBack   int
	MinRecheck time.Duration
	Regions    []string
	Limit      int
}

type BulkCriteria struct {
	DaysBack int
	Regions  []string
	Limit    int
}

// Selector chooses which stored inspections are due for a violation check.
// Every method is a single statement on the pool; no connection is held
// after it returns.
type Selector struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSelector(db *gorm.DB, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{db: db, now: now}
}

func (s *Selector) windowStart(daysBack int) time.Time {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -daysBack)
}

func (s *Selector) baseQuery(ctx context.Context, daysBack int, regions []string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Inspection{}).
		Select("activity_nr, estab_name").
		Where("open_date >= ?", s.windowStart(daysBack)).
		Where("site_state IN ?", regions)
}

// SelectTargeted returns recent inspections that were never checked, were
// last checked before the recheck interval, or still have no violations.
// Newest inspections come first. An empty region allow-list selects nothing.
func (s *Selector) SelectTargeted(ctx context.Context, c TargetedCriteria) ([]Candidate, error) {
	if c.Limit <= 0 || len(c.Regions) == 0 {
		return nil, nil
	}
	staleBefore := s.now().UTC().Add(-c.MinRecheck)

	var out []Candidate
	err := s.baseQuery(ctx, c.DaysBack, c.Regions).
		Where(`(last_violation_check_at IS NULL
			OR last_violation_check_at < ?
			OR NOT EXISTS (SELECT 1 FROM violations v WHERE v.activity_nr = inspections.activity_nr))`, staleBefore).
		Order("open_date DESC").
		Order("activity_nr").
		Limit(c.Limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select targeted candidates: %w", err)
	}
	return out, nil
}

// SelectBulk returns inspections in the window, least recently checked first.
func (s *Selector) SelectBulk(ctx context.Context, c BulkCriteria) ([]Candidate, error) {
	if c.Limit <= 0 || len(c.Regions) == 0 {
		return nil, nil
	}

	var out []Candidate
	err := s.baseQuery(ctx, c.DaysBack, c.Regions).
		Order("CASE WHEN last_violation_check_at IS NULL THEN 0 ELSE 1 END").
		Order("last_violation_check_at ASC").
		Order("activity_nr").
		Limit(c.Limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select bulk candidates: %w", err)
	}
	return out, nil
}

// SelectByActivityNr returns ErrInspectionNotFound when no such inspection is stored.
func (s *Selector) SelectByActivityNr(ctx context.Context, activityNr string) (Candidate, error) {
	var out Candidate
	err := s.db.WithContext(ctx).Model(&models.Inspection{}).
		Select("activity_nr, estab_name").
		Where("activity_nr = ?", activityNr).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Candidate{}, ErrInspectionNotFound
	}
	if err != nil {
		return Candidate{}, fmt.Errorf("load inspection %s: %w", activityNr, err)
	}
	return out, nil
}
