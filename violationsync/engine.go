package violationsync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	JobTargeted   = "violation_sync"
	JobBulk       = "violation_sync_bulk"
	JobInspection = "violation_sync_inspection"

	// Request budget of an on-demand single inspection sync.
	singleInspectionMaxRequests = 5
)

type TargetedParams struct {
	DaysBack       int
	MinRecheckDays int
	Limit          int
	MaxRequests    int
	Delay          time.Duration
}

type BulkParams struct {
	DaysBack    int
	Limit       int
	MaxRequests int
}

// Engine runs one synchronization per call. It holds no state between runs;
// everything left unprocessed is re-selected by the next invocation.
type Engine struct {
	db       *gorm.DB
	fetcher  *BatchFetcher
	settings config.SyncSettings
	now      func() time.Time
	logger   *logrus.Logger
	notifier Notifier
	tracer   trace.Tracer
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *logrus.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(db *gorm.DB, fetcher *BatchFetcher, settings config.SyncSettings, opts ...EngineOption) *Engine {
	e := &Engine{
		db:       db,
		fetcher:  fetcher,
		settings: settings,
		now:      time.Now,
		logger:   config.GetLogger(),
		tracer:   otel.Tracer("github.com/tsgsafety/osha_tracker/violationsync"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the per-invocation bookkeeping shared by the strategies.
type run struct {
	job        string
	stats      *SyncRunStatistics
	span       trace.Span
	candidates map[string]Candidate
}

func (e *Engine) begin(ctx context.Context, job string) (context.Context, *run) {
	ctx, span := e.tracer.Start(ctx, "violationsync."+job)
	return ctx, &run{
		job:        job,
		stats:      newStatistics(e.now().UTC()),
		span:       span,
		candidates: map[string]Candidate{},
	}
}

func (e *Engine) finish(ctx context.Context, r *run, state RunState) *SyncRunStatistics {
	s := r.stats
	s.State = state
	finished := e.now().UTC()
	s.FinishedAt = &finished
	s.logf(finished, "Run finished in state %s: checked=%d fetched=%d inserted=%d updated=%d skipped=%d errors=%d",
		state, s.InspectionsChecked, s.ViolationsFetched, s.ViolationsInserted, s.ViolationsUpdated, s.ViolationsSkipped, s.Errors)

	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	cronJob, _ := utils.GetJobNameFromContext(ctx)
	entry := e.logger.WithFields(logrus.Fields{
		"field":                           "violation_sync",
		"job":                             r.job,
		"cron_job":                        cronJob,
		"state":                           state,
		"correlation_id":                  cid,
		"triggered_by":                    utils.GetTriggeredByFromContext(ctx),
		"inspections_checked":             s.InspectionsChecked,
		"violations_fetched":              s.ViolationsFetched,
		"violations_inserted":             s.ViolationsInserted,
		"violations_updated":              s.ViolationsUpdated,
		"violations_skipped":              s.ViolationsSkipped,
		"inspections_with_new_violations": s.InspectionsWithNewViolations,
		"api_requests_made":               s.APIRequestsMade,
		"errors":                          s.Errors,
	})
	if state == StateFailed || s.Errors > 0 {
		entry.Warn("violation sync finished with errors")
	} else {
		entry.Info("violation sync finished")
	}

	r.span.SetAttributes(
		attribute.String("sync.state", string(state)),
		attribute.Int("sync.api_requests", s.APIRequestsMade),
		attribute.Int("sync.inserted", s.ViolationsInserted),
		attribute.Int("sync.updated", s.ViolationsUpdated),
		attribute.Int("sync.errors", s.Errors),
	)
	if state == StateFailed {
		r.span.SetStatus(codes.Error, "violation sync failed")
	}
	r.span.End()
	return s
}

// selectionFailed ends a run whose candidate read failed. This is the only
// error the public entry points return.
func (e *Engine) selectionFailed(ctx context.Context, r *run, err error) (*SyncRunStatistics, error) {
	r.span.RecordError(err)
	r.stats.errorf(e.now(), "Candidate selection failed: %v", err)
	return e.finish(ctx, r, StateFailed), err
}

func (e *Engine) remember(r *run, candidates []Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		r.candidates[c.ActivityNr] = c
		ids = append(ids, c.ActivityNr)
	}
	return ids
}

// RunTargetedSync checks recent inspections that are due for a re-check.
func (e *Engine) RunTargetedSync(ctx context.Context, p TargetedParams) (*SyncRunStatistics, error) {
	ctx, r := e.begin(ctx, JobTargeted)
	s := r.stats
	s.logf(e.now(), "Targeted violation sync: days_back=%d min_recheck_days=%d limit=%d max_requests=%d delay=%s",
		p.DaysBack, p.MinRecheckDays, p.Limit, p.MaxRequests, p.Delay)

	candidates, err := NewSelector(e.db, e.now).SelectTargeted(ctx, TargetedCriteria{
		DaysBack:   p.DaysBack,
		MinRecheck: time.Duration(p.MinRecheckDays) * 24 * time.Hour,
		Regions:    e.settings.Regions,
		Limit:      p.Limit,
	})
	if err != nil {
		return e.selectionFailed(ctx, r, err)
	}
	if len(candidates) == 0 {
		s.logf(e.now(), "No inspections due for a violation check")
		return e.finish(ctx, r, StateDone), nil
	}
	ids := e.remember(r, candidates)
	s.logf(e.now(), "Selected %d inspections", len(ids))

	s.State = StateFetching
	res := e.fetcher.Fetch(ctx, ids, p.MaxRequests, p.Delay)
	e.recordFetch(r, res)

	stamped := setOf(res.Completed)
	return e.reconcileAndAggregate(ctx, r, res.Records, stamped), nil
}

// RunBulkSync pulls every violation loaded since the window start and
// reconciles the rows whose inspection is stored locally. The selected
// least-recently-checked inspections are stamped only when the window was
// read to the end.
func (e *Engine) RunBulkSync(ctx context.Context, p BulkParams) (*SyncRunStatistics, error) {
	ctx, r := e.begin(ctx, JobBulk)
	s := r.stats
	s.logf(e.now(), "Bulk violation sync: days_back=%d limit=%d max_requests=%d", p.DaysBack, p.Limit, p.MaxRequests)

	candidates, err := NewSelector(e.db, e.now).SelectBulk(ctx, BulkCriteria{
		DaysBack: p.DaysBack,
		Regions:  e.settings.Regions,
		Limit:    p.Limit,
	})
	if err != nil {
		return e.selectionFailed(ctx, r, err)
	}
	if len(candidates) == 0 {
		s.logf(e.now(), "No inspections in the bulk window")
		return e.finish(ctx, r, StateDone), nil
	}
	ids := e.remember(r, candidates)
	s.logf(e.now(), "Selected %d inspections for the bulk sweep", len(ids))

	s.State = StateFetching
	now := e.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -p.DaysBack)
	res := e.fetcher.FetchSince(ctx, e.settings.BulkSinceField, since, p.MaxRequests, e.settings.DefaultDelay)
	e.recordFetch(r, res)

	var stamped map[string]struct{}
	if res.Exhausted {
		stamped = setOf(ids)
	} else {
		s.InspectionsDeferred = len(ids)
		s.logf(e.now(), "Window since %s not exhausted after %d requests; inspections stay due", since.Format("2006-01-02"), res.RequestsUsed)
	}
	return e.reconcileAndAggregate(ctx, r, res.Records, stamped), nil
}

// SyncInspection re-checks a single inspection on demand.
func (e *Engine) SyncInspection(ctx context.Context, activityNr string) (*SyncRunStatistics, error) {
	ctx, r := e.begin(ctx, JobInspection)
	s := r.stats

	c, err := NewSelector(e.db, e.now).SelectByActivityNr(ctx, activityNr)
	if err != nil {
		return e.selectionFailed(ctx, r, err)
	}
	ids := e.remember(r, []Candidate{c})
	s.logf(e.now(), "On-demand violation sync for %s (%s)", c.ActivityNr, c.EstabName)

	s.State = StateFetching
	res := e.fetcher.Fetch(ctx, ids, singleInspectionMaxRequests, e.settings.DefaultDelay)
	e.recordFetch(r, res)

	return e.reconcileAndAggregate(ctx, r, res.Records, setOf(res.Completed)), nil
}

func (e *Engine) recordFetch(r *run, res FetchResult) {
	s := r.stats
	s.APIRequestsMade = res.RequestsUsed
	s.ViolationsFetched = len(res.Records)
	for _, err := range res.Errors {
		s.errorf(e.now(), "Fetch failed: %v", err)
	}
	if len(res.Completed) > 0 || len(res.Unprocessed) > 0 || len(res.Failed) > 0 {
		s.InspectionsDeferred = len(res.Unprocessed) + len(res.Failed)
		s.logf(e.now(), "Fetched %d violations in %d requests: %d inspections complete (%d without violations), %d left for budget, %d failed",
			len(res.Records), res.RequestsUsed, len(res.Completed), len(res.ZeroResult()), len(res.Unprocessed), len(res.Failed))
	} else {
		s.logf(e.now(), "Fetched %d violations in %d requests", len(res.Records), res.RequestsUsed)
	}
}

// reconcileAndAggregate runs the write phases. stamped lists the inspections
// whose check is complete and must get last_violation_check_at.
func (e *Engine) reconcileAndAggregate(ctx context.Context, r *run, raws []RawViolation, stamped map[string]struct{}) *SyncRunStatistics {
	s := r.stats
	s.State = StateReconciling

	rows := make([]models.Violation, 0, len(raws))
	for _, raw := range raws {
		row, err := ParseViolation(raw)
		if err != nil {
			s.errorf(e.now(), "Dropped malformed record (activity_nr=%q citation_id=%q): %v", raw.ActivityNr, raw.CitationID, err)
			continue
		}
		rows = append(rows, row)
	}

	reconciler := NewReconciler(e.db)
	newByParent := map[string]int{}
	touched := map[string]struct{}{}
	failedParents := map[string]struct{}{}

	batches := batchByParent(rows, e.settings.ReconcileBatchParents)
	failedBatches := 0
	for i, batch := range batches {
		res, err := reconciler.Reconcile(ctx, batch.rows)
		if err != nil {
			failedBatches++
			for _, nr := range batch.parents {
				failedParents[nr] = struct{}{}
			}
			s.ViolationsSkipped += res.Skipped
			s.errorf(e.now(), "Reconcile batch %d/%d (%d inspections) rolled back: %v", i+1, len(batches), len(batch.parents), err)
			continue
		}
		s.ViolationsInserted += res.Inserted
		s.ViolationsUpdated += res.Updated
		s.ViolationsUnchanged += res.Unchanged
		s.ViolationsSkipped += res.Skipped
		for nr, n := range res.NewByParent {
			newByParent[nr] += n
		}
		for _, nr := range res.Touched {
			touched[nr] = struct{}{}
		}
	}
	if s.ViolationsSkipped > 0 {
		s.logf(e.now(), "Skipped %d violations without a stored inspection", s.ViolationsSkipped)
	}
	s.logf(e.now(), "Reconciled: %d inserted, %d updated, %d unchanged", s.ViolationsInserted, s.ViolationsUpdated, s.ViolationsUnchanged)

	// Completed inspections outside failed batches are stamped even when every batch failed.
	final := StateDone
	if len(batches) > 0 && failedBatches == len(batches) {
		final = StateFailed
	}

	s.State = StateAggregating
	checkedAt := e.now().UTC()
	var targets []AggregateTarget
	seen := map[string]struct{}{}
	for _, nr := range sortedKeys(stamped) {
		if _, failed := failedParents[nr]; failed {
			continue
		}
		seen[nr] = struct{}{}
		targets = append(targets, AggregateTarget{
			ActivityNr: nr,
			Stamp:      Stamp{CheckedAt: &checkedAt, NewCount: newByParent[nr]},
		})
	}
	for _, nr := range sortedKeys(touched) {
		if _, ok := seen[nr]; ok {
			continue
		}
		targets = append(targets, AggregateTarget{ActivityNr: nr, Stamp: Stamp{NewCount: newByParent[nr]}})
	}

	aggregator := NewAggregator(e.db, e.now)
	failedAggregates := map[string]struct{}{}
	for _, f := range aggregator.RecomputeAll(ctx, targets) {
		failedAggregates[f.ActivityNr] = struct{}{}
		s.errorf(e.now(), "Aggregate update failed for %s: %v", f.ActivityNr, f.Err)
	}
	for _, t := range targets {
		if _, failed := failedAggregates[t.ActivityNr]; failed || t.Stamp.CheckedAt == nil {
			continue
		}
		s.InspectionsChecked++
	}

	for _, nr := range sortedKeys(setOfCounts(newByParent)) {
		s.InspectionsWithNewViolations++
		name := r.candidates[nr].EstabName
		s.logf(e.now(), "%d new violations for %s (inspection %s)", newByParent[nr], displayName(name), nr)
		if _, failed := failedAggregates[nr]; failed {
			continue
		}
		e.notify(ctx, r, nr, name, newByParent[nr], checkedAt)
	}

	return e.finish(ctx, r, final)
}

func (e *Engine) notify(ctx context.Context, r *run, activityNr, name string, newCount int, at time.Time) {
	if e.notifier == nil {
		return
	}
	ev := NewViolationsEvent{
		ActivityNr: activityNr,
		EstabName:  name,
		NewCount:   newCount,
		DetectedAt: at,
		Job:        r.job,
	}
	var insp models.Inspection
	if err := e.db.WithContext(ctx).Select("total_current_penalty, total_initial_penalty").
		Where("activity_nr = ?", activityNr).Take(&insp).Error; err == nil {
		ev.TotalCurrentPenalty = insp.TotalCurrentPenalty
		ev.TotalInitialPenalty = insp.TotalInitialPenalty
	}
	if err := e.notifier.NotifyNewViolations(ctx, ev); err != nil {
		config.LogError(e.logger, "violationsync", "notify", "publish new violations event", activityNr, err)
		r.stats.errorf(e.now(), "Publishing new violations event for %s failed: %v", activityNr, err)
	}
}

type parentBatch struct {
	parents []string
	rows    []models.Violation
}

// batchByParent groups rows so that all rows of one inspection land in the
// same batch, in order of first appearance.
func batchByParent(rows []models.Violation, parentsPerBatch int) []parentBatch {
	if parentsPerBatch <= 0 {
		parentsPerBatch = 25
	}
	byParent := map[string][]models.Violation{}
	var order []string
	for _, row := range rows {
		if _, ok := byParent[row.ActivityNr]; !ok {
			order = append(order, row.ActivityNr)
		}
		byParent[row.ActivityNr] = append(byParent[row.ActivityNr], row)
	}

	var out []parentBatch
	for _, group := range utils.ChunkSlice(order, parentsPerBatch) {
		b := parentBatch{parents: group}
		for _, nr := range group {
			b.rows = append(b.rows, byParent[nr]...)
		}
		out = append(out, b)
	}
	return out
}

func setOf(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func setOfCounts(m map[string]int) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k, n := range m {
		if n > 0 {
			out[k] = struct{}{}
		}
	}
	return out
}

func displayName(name string) string {
	if name == "" {
		return "unknown establishment"
	}
	return name
}
