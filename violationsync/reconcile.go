package violationsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	reconcileInsertBatch = 100
	// Upper bound for IN lists on the bulk reads.
	lookupChunk = 500
)

// ReconcileResult describes one committed reconciliation batch.
type ReconcileResult struct {
	Inserted   int
	Updated    int
	Unchanged  int
	Skipped    int
	Duplicates int

	// NewByParent counts inserted rows per parent. It never includes updates.
	NewByParent map[string]int
	// Touched lists parents that received an insert or an update, sorted.
	Touched []string
	// Known lists the parents present in storage, sorted.
	Known []string
}

// Reconciler merges fetched violations into storage with conflict-safe bulk upserts.
type Reconciler struct {
	db *gorm.DB
}

func NewReconciler(db *gorm.DB) *Reconciler {
	return &Reconciler{db: db}
}

var violationKeyColumns = []clause.Column{{Name: "activity_nr"}, {Name: "citation_id"}}

// Reconcile classifies rows as insert, update or unchanged against what is
// stored and applies the writes in one transaction. Rows whose parent is not
// stored are counted as skipped and never written. On error nothing of the
// batch is applied.
func (r *Reconciler) Reconcile(ctx context.Context, rows []models.Violation) (ReconcileResult, error) {
	res := ReconcileResult{NewByParent: map[string]int{}}
	if len(rows) == 0 {
		return res, nil
	}

	db := r.db.WithContext(ctx)
	known, err := r.existingParents(db, parentsOf(rows))
	if err != nil {
		return res, err
	}

	// Last occurrence of a key within one fetch wins.
	fetched := make(map[violationKey]models.Violation, len(rows))
	var order []violationKey
	for _, row := range rows {
		if _, ok := known[row.ActivityNr]; !ok {
			res.Skipped++
			continue
		}
		row.CitationID = NormalizeCitationID(row.CitationID)
		k := violationKey{ActivityNr: row.ActivityNr, CitationID: row.CitationID}
		if _, dup := fetched[k]; dup {
			res.Duplicates++
		} else {
			order = append(order, k)
		}
		fetched[k] = row
	}
	res.Known = sortedKeys(known)
	if len(order) == 0 {
		return res, nil
	}

	stored, err := r.existingViolations(db, res.Known)
	if err != nil {
		return res, err
	}

	var inserts, updates []models.Violation
	var rekeys []models.Violation
	touched := map[string]struct{}{}
	for _, k := range order {
		row := fetched[k]
		prev, exists := stored[k]
		switch {
		case !exists:
			inserts = append(inserts, row)
			res.NewByParent[k.ActivityNr]++
			touched[k.ActivityNr] = struct{}{}
		case violationChanged(prev, row):
			if prev.CitationID != k.CitationID {
				rekeys = append(rekeys, prev)
			}
			updates = append(updates, row)
			touched[k.ActivityNr] = struct{}{}
		default:
			res.Unchanged++
		}
	}

	if len(inserts) == 0 && len(updates) == 0 {
		return res, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, legacy := range rekeys {
			if err := tx.Model(&models.Violation{}).
				Where("id = ?", legacy.ID).
				Update("citation_id", NormalizeCitationID(legacy.CitationID)).Error; err != nil {
				return fmt.Errorf("normalize stored citation %s/%s: %w", legacy.ActivityNr, legacy.CitationID, err)
			}
		}
		if len(inserts) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   violationKeyColumns,
				DoNothing: true,
			}).CreateInBatches(&inserts, reconcileInsertBatch).Error; err != nil {
				return fmt.Errorf("insert violations: %w", err)
			}
		}
		if len(updates) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   violationKeyColumns,
				DoUpdates: clause.AssignmentColumns(models.ViolationMutableColumns),
			}).CreateInBatches(&updates, reconcileInsertBatch).Error; err != nil {
				return fmt.Errorf("upsert violations: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{NewByParent: map[string]int{}, Skipped: res.Skipped}, err
	}

	res.Inserted = len(inserts)
	res.Updated = len(updates)
	res.Touched = sortedKeys(touched)
	return res, nil
}

func (r *Reconciler) existingParents(db *gorm.DB, parents []string) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(parents))
	for _, chunk := range utils.ChunkSlice(parents, lookupChunk) {
		var found []string
		if err := db.Model(&models.Inspection{}).
			Where("activity_nr IN ?", chunk).
			Pluck("activity_nr", &found).Error; err != nil {
			return nil, fmt.Errorf("load parent inspections: %w", err)
		}
		for _, nr := range found {
			known[nr] = struct{}{}
		}
	}
	return known, nil
}

// existingViolations keys stored rows through the same normalizer used on
// fetched rows.
func (r *Reconciler) existingViolations(db *gorm.DB, parents []string) (map[violationKey]models.Violation, error) {
	out := map[violationKey]models.Violation{}
	for _, chunk := range utils.ChunkSlice(parents, lookupChunk) {
		var rows []models.Violation
		if err := db.Where("activity_nr IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load stored violations: %w", err)
		}
		for _, row := range rows {
			out[newViolationKey(row.ActivityNr, row.CitationID)] = row
		}
	}
	return out, nil
}

// violationChanged compares every tracked column.
func violationChanged(stored, fetched models.Violation) bool {
	return !equalString(stored.DeleteFlag, fetched.DeleteFlag) ||
		!equalString(stored.Standard, fetched.Standard) ||
		!equalString(stored.ViolType, fetched.ViolType) ||
		!equalTime(stored.IssuanceDate, fetched.IssuanceDate) ||
		!equalTime(stored.AbateDate, fetched.AbateDate) ||
		!equalString(stored.AbateComplete, fetched.AbateComplete) ||
		!stored.CurrentPenalty.Equal(fetched.CurrentPenalty) ||
		!stored.InitialPenalty.Equal(fetched.InitialPenalty) ||
		!equalTime(stored.ContestDate, fetched.ContestDate) ||
		!equalTime(stored.FinalOrderDate, fetched.FinalOrderDate) ||
		!equalInt(stored.NrInstances, fetched.NrInstances) ||
		!equalInt(stored.NrExposed, fetched.NrExposed) ||
		!equalString(stored.Rec, fetched.Rec) ||
		!equalString(stored.Gravity, fetched.Gravity) ||
		!equalString(stored.Emphasis, fetched.Emphasis) ||
		!equalString(stored.Hazcat, fetched.Hazcat) ||
		!equalTime(stored.LoadDt, fetched.LoadDt)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func parentsOf(rows []models.Violation) []string {
	nrs := make([]string, 0, len(rows))
	for _, row := range rows {
		nrs = append(nrs, row.ActivityNr)
	}
	return utils.UniqueSlice(nrs)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
