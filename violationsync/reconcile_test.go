package violationsync

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/testutil"
	"gorm.io/gorm"
)

func parsed(t *testing.T, raws ...RawViolation) []models.Violation {
	t.Helper()
	out := make([]models.Violation, 0, len(raws))
	for _, r := range raws {
		v, err := ParseViolation(r)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func storedViolation(t *testing.T, db *gorm.DB, activityNr, citationID string) models.Violation {
	t.Helper()
	var v models.Violation
	require.NoError(t, db.Where("activity_nr = ? AND citation_id = ?", activityNr, citationID).Take(&v).Error)
	return v
}

func TestReconcileInsertsNormalizedRows(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))

	res, err := NewReconciler(db).Reconcile(context.Background(), parsed(t,
		raw("P", "01", "1000", "1500"),
		raw("P", "01A", "500", "500"),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, map[string]int{"P": 2}, res.NewByParent)
	assert.Equal(t, []string{"P"}, res.Touched)

	v := storedViolation(t, db, "P", "1")
	assert.True(t, decimal.NewFromInt(1000).Equal(v.CurrentPenalty))
	storedViolation(t, db, "P", "1A")
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))
	rows := parsed(t, raw("P", "01", "1000", "1500"), raw("P", "02", "0", "0"))
	r := NewReconciler(db)

	_, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)

	res, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 2, res.Unchanged)
	assert.Empty(t, res.Touched)
	assert.Empty(t, res.NewByParent)
	assert.EqualValues(t, 2, testutil.CountViolations(t, db, "P"))
}

func TestReconcileUpdatesChangedRows(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))
	testutil.SeedViolation(t, db, "P", "1", 1000, 1000)

	res, err := NewReconciler(db).Reconcile(context.Background(), parsed(t, raw("P", "1", "1200", "1000")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Inserted)
	assert.Empty(t, res.NewByParent, "updates are never counted as new")
	assert.Equal(t, []string{"P"}, res.Touched)

	v := storedViolation(t, db, "P", "1")
	assert.True(t, decimal.NewFromInt(1200).Equal(v.CurrentPenalty))
}

func TestReconcileSkipsOrphans(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))

	res, err := NewReconciler(db).Reconcile(context.Background(), parsed(t,
		raw("UNKNOWN-1", "01", "100", "100"),
		raw("P", "01", "100", "100"),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"P"}, res.Known)
	assert.Zero(t, testutil.CountViolations(t, db, "UNKNOWN-1"))
}

func TestReconcileDuplicateKeysLastWins(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))

	res, err := NewReconciler(db).Reconcile(context.Background(), parsed(t,
		raw("P", "001", "100", "100"),
		raw("P", "1", "300", "300"),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Inserted)
	assert.EqualValues(t, 1, testutil.CountViolations(t, db, "P"))
	assert.True(t, decimal.NewFromInt(300).Equal(storedViolation(t, db, "P", "1").CurrentPenalty))
}

func TestReconcileMatchesLegacyPaddedIDs(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))
	testutil.SeedViolation(t, db, "P", "001", 100, 100)
	r := NewReconciler(db)

	res, err := r.Reconcile(context.Background(), parsed(t, raw("P", "1", "100", "100")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.EqualValues(t, 1, testutil.CountViolations(t, db, "P"))

	res, err = r.Reconcile(context.Background(), parsed(t, raw("P", "01", "250", "100")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.EqualValues(t, 1, testutil.CountViolations(t, db, "P"))
	assert.True(t, decimal.NewFromInt(250).Equal(storedViolation(t, db, "P", "1").CurrentPenalty))
}

func TestReconcileRollsBackOnWriteFailure(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedInspection(t, db, "P", "GA", testutil.Date(2026, 9, 1))
	testutil.SeedViolation(t, db, "P", "001", 100, 100)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_violation_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "violations" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	res, err := NewReconciler(db).Reconcile(context.Background(), parsed(t,
		raw("P", "1", "900", "100"),
		raw("P", "2", "50", "50"),
	))
	require.Error(t, err)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Updated)

	// The rekey of the legacy row ran inside the same transaction.
	v := storedViolation(t, db, "P", "001")
	assert.True(t, decimal.NewFromInt(100).Equal(v.CurrentPenalty))
	assert.EqualValues(t, 1, testutil.CountViolations(t, db, "P"))
}

func TestReconcileEmpty(t *testing.T) {
	db := testutil.OpenDB(t)
	res, err := NewReconciler(db).Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
}
