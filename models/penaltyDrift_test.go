package models_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/testutil"
)

func TestFindPenaltyDrift(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	opened := testutil.Date(2026, 5, 1)

	testutil.SeedInspection(t, db, "100", "GA", opened)
	testutil.SeedInspection(t, db, "200", "GA", opened)
	testutil.SeedInspection(t, db, "300", "GA", opened)

	// 100: totals never recomputed after two children arrived.
	testutil.SeedViolation(t, db, "100", "1", 1000, 1500)
	testutil.SeedViolation(t, db, "100", "2", 500, 500)

	// 200: consistent.
	testutil.SeedViolation(t, db, "200", "1", 700, 900)
	require.NoError(t, db.Model(&models.Inspection{}).Where("activity_nr = ?", "200").Updates(map[string]interface{}{
		"total_current_penalty": decimal.NewFromInt(700),
		"total_initial_penalty": decimal.NewFromInt(900),
	}).Error)

	// 300: stored totals but the only child is deleted.
	deleted := testutil.SeedViolation(t, db, "300", "1", 400, 400)
	require.NoError(t, db.Model(&deleted).Update("delete_flag", "X").Error)
	require.NoError(t, db.Model(&models.Inspection{}).Where("activity_nr = ?", "300").
		Update("total_current_penalty", decimal.NewFromInt(400)).Error)

	drift, err := models.FindPenaltyDrift(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, drift, 2)

	assert.Equal(t, "100", drift[0].ActivityNr)
	assert.True(t, drift[0].StoredCurrent.IsZero())
	assert.True(t, decimal.NewFromInt(1500).Equal(drift[0].ActualCurrent))
	assert.True(t, decimal.NewFromInt(2000).Equal(drift[0].ActualInitial))

	assert.Equal(t, "300", drift[1].ActivityNr)
	assert.True(t, drift[1].ActualCurrent.IsZero())
}

func TestFindPenaltyDriftRespectsLimit(t *testing.T) {
	db := testutil.OpenDB(t)
	opened := testutil.Date(2026, 5, 1)
	for _, nr := range []string{"1", "2", "3"} {
		testutil.SeedInspection(t, db, nr, "FL", opened)
		testutil.SeedViolation(t, db, nr, "1", 10, 10)
	}

	drift, err := models.FindPenaltyDrift(context.Background(), db, 2)
	require.NoError(t, err)
	assert.Len(t, drift, 2)
}

func TestViolationIsDeleted(t *testing.T) {
	assert.False(t, models.Violation{}.IsDeleted())
	assert.False(t, models.Violation{DeleteFlag: testutil.Ptr("")}.IsDeleted())
	assert.True(t, models.Violation{DeleteFlag: testutil.Ptr("X")}.IsDeleted())
}
